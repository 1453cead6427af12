package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/teller/internal/app/service/subscription"
	"github.com/fatflowers/teller/internal/app/service/webhook"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/logctx"
	"github.com/fatflowers/teller/pkg/metrics"
	"github.com/fatflowers/teller/pkg/types"
)

// SweepResult summarizes one bounded maintenance pass.
type SweepResult struct {
	Sweep    string `json:"sweep"`
	Scanned  int64  `json:"scanned"`
	Affected int64  `json:"affected"`
	Failed   int64  `json:"failed,omitempty"`
}

// Service runs the bounded maintenance sweeps. Each sweep is a single
// invocation doing a bounded amount of work; an external scheduler owns
// the cadence.
type Service struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	db       *gorm.DB
	ingestor webhook.Ingestor
	subSvc   *subscription.Service
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, db *gorm.DB, ingestor webhook.Ingestor, subSvc *subscription.Service) *Service {
	return &Service{cfg: cfg, log: log, db: db, ingestor: ingestor, subSvc: subSvc}
}

// CleanupPayments removes failed and canceled payments past the
// retention window, with their attempt rows. Money-bearing states are
// never swept.
func (s *Service) CleanupPayments(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.Sweep.PaymentRetentionDays)

	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status IN ? AND created_at < ?",
			[]types.PaymentStatus{types.PaymentStatusFailed, types.PaymentStatusCanceled}, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale payments: %w", err)
	}

	result := &SweepResult{Sweep: "cleanup_payments", Scanned: int64(len(ids))}
	if len(ids) == 0 {
		return result, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("payment_id IN ?", ids).Delete(&models.PaymentAttempt{}).Error; err != nil {
			return fmt.Errorf("failed to delete payment attempts: %w", err)
		}
		res := tx.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Payment{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete payments: %w", res.Error)
		}
		result.Affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SweepDeleted.WithLabelValues(result.Sweep).Add(float64(result.Affected))
	logctx.FromCtx(ctx, s.log).Infow("sweep_completed",
		"sweep", result.Sweep, "affected", result.Affected, "cutoff", cutoff)
	return result, nil
}

// CleanupWebhookEvents removes processed and ignored events past the
// retention window. Failed events stay for the retry sweep.
func (s *Service) CleanupWebhookEvents(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.Sweep.WebhookRetentionDays)

	res := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]types.WebhookEventStatus{types.WebhookEventStatusProcessed, types.WebhookEventStatusIgnored}, cutoff).
		Delete(&models.WebhookEvent{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to delete webhook events: %w", res.Error)
	}

	result := &SweepResult{Sweep: "cleanup_webhook_events", Scanned: res.RowsAffected, Affected: res.RowsAffected}
	metrics.SweepDeleted.WithLabelValues(result.Sweep).Add(float64(result.Affected))
	logctx.FromCtx(ctx, s.log).Infow("sweep_completed",
		"sweep", result.Sweep, "affected", result.Affected, "cutoff", cutoff)
	return result, nil
}

// retryStaleGrace keeps events that may still be mid-dispatch out of
// the retry selection.
const retryStaleGrace = time.Minute

// RetryFailedWebhooks re-dispatches events that failed within the
// recent retry window, in one bounded batch ordered oldest first.
// Events stuck in pending past the grace period (their outcome update
// never landed) are retried the same way; failures older than the
// window are left for manual review through the admin API.
func (s *Service) RetryFailedWebhooks(ctx context.Context) (*SweepResult, error) {
	now := time.Now()
	oldest := now.Add(-s.cfg.Sweep.WebhookRetryWindow)
	stale := now.Add(-retryStaleGrace)

	var events []*models.WebhookEvent
	err := s.db.WithContext(ctx).
		Where("status IN ? AND created_at >= ? AND created_at <= ?",
			[]types.WebhookEventStatus{types.WebhookEventStatusFailed, types.WebhookEventStatusPending},
			oldest, stale).
		Order("created_at asc").
		Limit(s.cfg.Sweep.WebhookRetryBatch).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan failed webhook events: %w", err)
	}

	result := &SweepResult{Sweep: "retry_failed_webhooks", Scanned: int64(len(events))}
	for _, event := range events {
		if err := s.ingestor.Dispatch(ctx, event); err != nil {
			result.Failed++
			logctx.FromCtx(ctx, s.log).Warnw("webhook_retry_error",
				"event_id", event.EventID, "error", err.Error())
			continue
		}
		if event.Terminal() {
			result.Affected++
		} else {
			result.Failed++
		}
	}

	logctx.FromCtx(ctx, s.log).Infow("sweep_completed",
		"sweep", result.Sweep, "scanned", result.Scanned,
		"recovered", result.Affected, "still_failed", result.Failed)
	return result, nil
}

// ExpireSubscriptions moves active subscriptions past their end date to
// expired, dropping their entitlements.
func (s *Service) ExpireSubscriptions(ctx context.Context) (*SweepResult, error) {
	now := time.Now()

	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", types.SubscriptionStatusActive, now).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired subscriptions: %w", err)
	}

	result := &SweepResult{Sweep: "expire_subscriptions", Scanned: int64(len(subs))}
	for _, sub := range subs {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.subSvc.ExpireTx(ctx, tx, sub)
			return err
		})
		if err != nil {
			result.Failed++
			logctx.FromCtx(ctx, s.log).Warnw("subscription_expiry_error",
				"subscription_id", sub.ID, "error", err.Error())
			continue
		}
		result.Affected++
	}

	logctx.FromCtx(ctx, s.log).Infow("sweep_completed",
		"sweep", result.Sweep, "expired", result.Affected, "failed", result.Failed)
	return result, nil
}

// ExpiryReminders reports active subscriptions ending inside the
// reminder horizon. Delivery of the reminder itself is out of process;
// this sweep only surfaces the candidates.
func (s *Service) ExpiryReminders(ctx context.Context) (*SweepResult, []*models.Subscription, error) {
	now := time.Now()
	horizon := now.AddDate(0, 0, s.cfg.Sweep.ExpiryReminderDays)

	// Auto-renewing subscriptions do not need a reminder; they roll over.
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND auto_renew = ? AND end_date IS NOT NULL AND end_date BETWEEN ? AND ?",
			types.SubscriptionStatusActive, false, now, horizon).
		Order("end_date asc").
		Find(&subs).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan expiring subscriptions: %w", err)
	}

	result := &SweepResult{Sweep: "expiry_reminders", Scanned: int64(len(subs)), Affected: int64(len(subs))}
	logctx.FromCtx(ctx, s.log).Infow("sweep_completed",
		"sweep", result.Sweep, "expiring_within_days", s.cfg.Sweep.ExpiryReminderDays, "count", len(subs))
	return result, subs, nil
}
