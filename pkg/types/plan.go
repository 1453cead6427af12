package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable subscription plan. The catalog lives in config,
// not in the database; payments snapshot the plan they were created for.
type Plan struct {
	ID            string          `json:"id" mapstructure:"id"`
	Name          string          `json:"name" mapstructure:"name"`
	Price         decimal.Decimal `json:"price" mapstructure:"price"`
	Currency      string          `json:"currency" mapstructure:"currency"`
	DurationDays  int             `json:"duration_days" mapstructure:"duration_days"`
	StripePriceID string          `json:"stripe_price_id" mapstructure:"stripe_price_id"`
	Active        bool            `json:"active" mapstructure:"active"`
}

func (p *Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}
