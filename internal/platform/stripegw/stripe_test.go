package stripegw

import (
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/types"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{in: "10.00", want: 1000},
		{in: "0.99", want: 99},
		{in: "19.90", want: 1990},
		{in: "0.00", want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, minorUnits(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestCurrencyCode(t *testing.T) {
	assert.Equal(t, "usd", currencyCode(""))
	assert.Equal(t, "usd", currencyCode("USD"))
	assert.Equal(t, "eur", currencyCode("EUR"))
}

func TestAddCorrelation(t *testing.T) {
	payment := &models.Payment{
		ID:             "pay-1",
		UserID:         "user-1",
		SubscriptionID: lo.ToPtr("sub-1"),
	}

	var p stripe.Params
	addCorrelation(&p, payment)

	require.NotNil(t, p.Metadata)
	assert.Equal(t, "pay-1", p.Metadata[types.MetadataKeyPaymentID])
	assert.Equal(t, "user-1", p.Metadata[types.MetadataKeyUserID])
	assert.Equal(t, "sub-1", p.Metadata[types.MetadataKeySubscriptionID])

	var q stripe.Params
	addCorrelation(&q, &models.Payment{ID: "pay-2", UserID: "user-2"})
	_, hasSub := q.Metadata[types.MetadataKeySubscriptionID]
	assert.False(t, hasSub)
}
