package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/types"
)

func TestPaymentTransitions_Table(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		from      types.PaymentStatus
		to        types.PaymentStatus
		ok        bool
		processed bool
	}{
		{name: "pending to processing", from: types.PaymentStatusPending, to: types.PaymentStatusProcessing, ok: true},
		{name: "pending to canceled", from: types.PaymentStatusPending, to: types.PaymentStatusCanceled, ok: true, processed: true},
		{name: "processing to succeeded", from: types.PaymentStatusProcessing, to: types.PaymentStatusSucceeded, ok: true, processed: true},
		{name: "processing to failed", from: types.PaymentStatusProcessing, to: types.PaymentStatusFailed, ok: true, processed: true},
		{name: "processing to canceled", from: types.PaymentStatusProcessing, to: types.PaymentStatusCanceled, ok: true, processed: true},
		{name: "succeeded to refunded", from: types.PaymentStatusSucceeded, to: types.PaymentStatusRefunded, ok: true},
		{name: "pending to succeeded rejected", from: types.PaymentStatusPending, to: types.PaymentStatusSucceeded},
		{name: "pending to refunded rejected", from: types.PaymentStatusPending, to: types.PaymentStatusRefunded},
		{name: "failed to succeeded rejected", from: types.PaymentStatusFailed, to: types.PaymentStatusSucceeded},
		{name: "refunded is terminal", from: types.PaymentStatusRefunded, to: types.PaymentStatusCanceled},
		{name: "succeeded to canceled rejected", from: types.PaymentStatusSucceeded, to: types.PaymentStatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Payment{ID: "p1", Status: tt.from}
			err := p.TransitionTo(tt.to, now)
			if !tt.ok {
				require.ErrorIs(t, err, errs.ErrStateConflict)
				assert.Equal(t, tt.from, p.Status, "failed transition must not mutate")
				assert.Nil(t, p.ProcessedAt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, p.Status)
			if tt.processed {
				require.NotNil(t, p.ProcessedAt)
				assert.Equal(t, now, *p.ProcessedAt)
			} else {
				assert.Nil(t, p.ProcessedAt)
			}
		})
	}
}

func TestPaymentTransition_RefundedKeepsProcessedAt(t *testing.T) {
	now := time.Now()
	p := &Payment{ID: "p1", Status: types.PaymentStatusProcessing}
	require.NoError(t, p.TransitionTo(types.PaymentStatusSucceeded, now))
	stamp := *p.ProcessedAt

	require.NoError(t, p.TransitionTo(types.PaymentStatusRefunded, now.Add(time.Hour)))
	require.NotNil(t, p.ProcessedAt)
	assert.Equal(t, stamp, *p.ProcessedAt)
}

func TestSubscriptionTransitions_Table(t *testing.T) {
	tests := []struct {
		name string
		from types.SubscriptionStatus
		to   types.SubscriptionStatus
		ok   bool
	}{
		{name: "pending to active", from: types.SubscriptionStatusPending, to: types.SubscriptionStatusActive, ok: true},
		{name: "pending to canceled", from: types.SubscriptionStatusPending, to: types.SubscriptionStatusCanceled, ok: true},
		{name: "active to canceled", from: types.SubscriptionStatusActive, to: types.SubscriptionStatusCanceled, ok: true},
		{name: "active to expired", from: types.SubscriptionStatusActive, to: types.SubscriptionStatusExpired, ok: true},
		{name: "pending to expired rejected", from: types.SubscriptionStatusPending, to: types.SubscriptionStatusExpired},
		{name: "canceled is terminal", from: types.SubscriptionStatusCanceled, to: types.SubscriptionStatusActive},
		{name: "expired is terminal", from: types.SubscriptionStatusExpired, to: types.SubscriptionStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Subscription{ID: "s1", Status: tt.from}
			err := s.TransitionTo(tt.to)
			if !tt.ok {
				require.ErrorIs(t, err, errs.ErrStateConflict)
				assert.Equal(t, tt.from, s.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, s.Status)
		})
	}
}

func TestRefundTransitions_Table(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		from types.RefundStatus
		to   types.RefundStatus
		ok   bool
	}{
		{name: "pending to succeeded", from: types.RefundStatusPending, to: types.RefundStatusSucceeded, ok: true},
		{name: "pending to failed", from: types.RefundStatusPending, to: types.RefundStatusFailed, ok: true},
		{name: "pending to canceled", from: types.RefundStatusPending, to: types.RefundStatusCanceled, ok: true},
		{name: "succeeded is terminal", from: types.RefundStatusSucceeded, to: types.RefundStatusFailed},
		{name: "failed is terminal", from: types.RefundStatusFailed, to: types.RefundStatusSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Refund{ID: "r1", Status: tt.from}
			err := r.TransitionTo(tt.to, now)
			if !tt.ok {
				require.ErrorIs(t, err, errs.ErrStateConflict)
				assert.Equal(t, tt.from, r.Status)
				return
			}
			require.NoError(t, err)
			if tt.to == types.RefundStatusSucceeded {
				require.NotNil(t, r.ProcessedAt)
			}
		})
	}
}

func TestSubscriptionIsActive(t *testing.T) {
	now := time.Now()
	end := now.Add(48 * time.Hour)

	active := &Subscription{Status: types.SubscriptionStatusActive, EndDate: &end}
	assert.True(t, active.IsActive(now))
	assert.Equal(t, 2, active.DaysRemaining(now))

	past := now.Add(-time.Hour)
	lapsed := &Subscription{Status: types.SubscriptionStatusActive, EndDate: &past}
	assert.False(t, lapsed.IsActive(now))

	pending := &Subscription{Status: types.SubscriptionStatusPending, EndDate: &end}
	assert.False(t, pending.IsActive(now))
}

func TestPaymentCanBeRefunded(t *testing.T) {
	assert.True(t, (&Payment{Status: types.PaymentStatusSucceeded, PaymentMethod: types.PaymentProviderStripe}).CanBeRefunded())
	assert.False(t, (&Payment{Status: types.PaymentStatusPending, PaymentMethod: types.PaymentProviderStripe}).CanBeRefunded())
	assert.False(t, (&Payment{Status: types.PaymentStatusSucceeded, PaymentMethod: types.PaymentProviderManual}).CanBeRefunded())
}
