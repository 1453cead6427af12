package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsAndPlanCatalog(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	content := `
stripe:
  secret_key: sk_test_123
  webhook_secret: whsec_123
plans:
  - id: monthly
    name: Monthly
    price: "10.00"
    currency: USD
    duration_days: 30
    stripe_price_id: price_monthly
    active: true
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	t.Setenv("APP_CONFIG_FILE", file)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, 90, cfg.Sweep.PaymentRetentionDays)
	assert.Equal(t, 30, cfg.Sweep.WebhookRetentionDays)
	assert.Equal(t, time.Hour, cfg.Sweep.WebhookRetryWindow)
	assert.Equal(t, 50, cfg.Sweep.WebhookRetryBatch)
	assert.Equal(t, 15*time.Second, cfg.Stripe.CallTimeout)

	plan := cfg.GetPlanByID("monthly")
	require.NotNil(t, plan)
	assert.True(t, plan.Price.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 30, plan.DurationDays)
	assert.Equal(t, 30*24*time.Hour, plan.Duration())

	assert.Nil(t, cfg.GetPlanByID("yearly"))
}
