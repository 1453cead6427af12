package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrappedKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("create refund: %w", Validationf("amount %s exceeds balance", "15.00"))
	require.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrStateConflict))

	err = fmt.Errorf("cancel payment: %w", Conflictf("payment %s is %s", "p1", "succeeded"))
	require.True(t, errors.Is(err, ErrStateConflict))
}

func TestGatewayError(t *testing.T) {
	inner := errors.New("connection reset")
	err := fmt.Errorf("initiate checkout: %w", Gateway("stripe", "create_checkout_session", inner))

	require.True(t, IsGateway(err))
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "stripe", ge.Provider)
	assert.Equal(t, "create_checkout_session", ge.Op)
	assert.ErrorIs(t, err, inner)

	assert.False(t, IsGateway(errors.New("plain")))
}
