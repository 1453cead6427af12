package response

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fatflowers/teller/pkg/errs"
)

func TestCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want APIResponseCode
	}{
		{name: "nil", err: nil, want: APIResponseCodeOK},
		{name: "validation", err: errs.Validationf("bad amount"), want: APIResponseCodeBadRequest},
		{name: "not found wrapped", err: fmt.Errorf("load payment: %w", errs.ErrNotFound), want: APIResponseCodeNotFound},
		{name: "conflict", err: errs.Conflictf("illegal transition"), want: APIResponseCodeConflict},
		{name: "gateway", err: errs.Gateway("stripe", "refund", errors.New("boom")), want: APIResponseCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeFor(tt.err))
		})
	}
}

func TestEnvelope(t *testing.T) {
	ok := OKT(map[string]string{"status": "ok"})
	assert.Equal(t, APIResponseCodeOK, ok.Code)
	assert.Equal(t, "ok", ok.Message)

	bad := ErrorT[any](APIResponseCodeConflict, "already refunded")
	assert.Equal(t, APIResponseCodeConflict, bad.Code)
	assert.Equal(t, "state conflict", bad.Message)
}
