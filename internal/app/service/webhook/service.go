package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/teller/internal/app/service/payment"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/logctx"
	"github.com/fatflowers/teller/pkg/metrics"
	"github.com/fatflowers/teller/pkg/tool"
	"github.com/fatflowers/teller/pkg/types"
)

// eventObject is the subset of a provider data object the handlers read.
type eventObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	PaymentIntent    string            `json:"payment_intent"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Ingestor records provider events exactly once and applies their
// consequences.
type Ingestor interface {
	// Ingest persists the event and dispatches it. A redelivery of an
	// already-recorded event_id returns errs.ErrDuplicateEvent without
	// side effects. Handler failures are captured on the stored event and
	// do not surface as an Ingest error.
	Ingest(ctx context.Context, provider types.PaymentProvider, eventID, eventType string, payload []byte) (*models.WebhookEvent, error)
	// Dispatch runs the handler for a stored event and moves it to
	// processed, ignored, or failed. The retry sweep reuses it.
	Dispatch(ctx context.Context, event *models.WebhookEvent) error
	GetEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error)
}

type handlerFunc func(ctx context.Context, obj *eventObject) error

type Service struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	db       *gorm.DB
	payments payment.Orchestrator

	handlers map[string]handlerFunc
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, db *gorm.DB, payments payment.Orchestrator) Ingestor {
	s := &Service{cfg: cfg, log: log, db: db, payments: payments}
	s.handlers = map[string]handlerFunc{
		types.EventTypeCheckoutCompleted: s.handleCheckoutCompleted,
		types.EventTypePaymentSucceeded:  s.handlePaymentSucceeded,
		types.EventTypePaymentFailed:     s.handlePaymentFailed,
		types.EventTypeDisputeCreated:    s.handleDisputeCreated,
	}
	return s
}

func (s *Service) Ingest(ctx context.Context, provider types.PaymentProvider, eventID, eventType string, payload []byte) (*models.WebhookEvent, error) {
	if eventID == "" {
		return nil, errs.Validationf("event id required")
	}

	event := &models.WebhookEvent{
		ID:        tool.GenerateUUIDV7(),
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Status:    types.WebhookEventStatusPending,
		Data:      payload,
	}

	// The unique index on event_id arbitrates concurrent deliveries:
	// exactly one insert lands, every other delivery sees zero rows.
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to record webhook event %s: %w", eventID, res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.WebhookDuplicates.WithLabelValues(string(provider)).Inc()
		logctx.FromCtx(ctx, s.log).Infow("webhook_event_duplicate",
			"provider", provider, "event_id", eventID, "event_type", eventType)
		return nil, fmt.Errorf("event %s: %w", eventID, errs.ErrDuplicateEvent)
	}

	if err := s.Dispatch(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) Dispatch(ctx context.Context, event *models.WebhookEvent) error {
	log := logctx.FromCtx(ctx, s.log)

	handler, known := s.handlers[event.EventType]
	if !known {
		log.Infow("webhook_event_ignored", "event_id", event.EventID, "event_type", event.EventType)
		return s.finish(ctx, event, types.WebhookEventStatusIgnored, nil)
	}

	var obj eventObject
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		log.Warnw("webhook_event_unparseable", "event_id", event.EventID, "error", err.Error())
		return s.finish(ctx, event, types.WebhookEventStatusFailed, err)
	}

	if err := handler(ctx, &obj); err != nil {
		metrics.WebhookFailures.WithLabelValues(event.EventType).Inc()
		log.Warnw("webhook_event_failed",
			"event_id", event.EventID, "event_type", event.EventType, "error", err.Error())
		return s.finish(ctx, event, types.WebhookEventStatusFailed, err)
	}

	metrics.WebhookProcessed.WithLabelValues(event.EventType).Inc()
	log.Infow("webhook_event_processed", "event_id", event.EventID, "event_type", event.EventType)
	return s.finish(ctx, event, types.WebhookEventStatusProcessed, nil)
}

// finish persists the dispatch outcome. A handler error becomes row
// state, not a caller error, so the provider is not asked to redeliver
// what the retry sweep will pick up.
func (s *Service) finish(ctx context.Context, event *models.WebhookEvent, status types.WebhookEventStatus, cause error) error {
	updates := map[string]any{
		"status":       status,
		"processed_at": time.Now(),
	}
	if cause != nil {
		updates["error_message"] = cause.Error()
	} else {
		updates["error_message"] = nil
	}
	if err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", event.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finish webhook event %s: %w", event.EventID, err)
	}
	event.Status = status
	if cause != nil {
		event.ErrorMessage = lo.ToPtr(cause.Error())
	} else {
		event.ErrorMessage = nil
	}
	return nil
}

func (s *Service) GetEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("webhook event %s: %w", eventID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load webhook event %s: %w", eventID, err)
	}
	return &event, nil
}

// paymentIDFrom pulls the local correlation id the gateway stamped onto
// the provider object at creation time.
func paymentIDFrom(obj *eventObject) (string, error) {
	id := obj.Metadata[types.MetadataKeyPaymentID]
	if id == "" {
		return "", errs.Validationf("event object carries no %s metadata", types.MetadataKeyPaymentID)
	}
	return id, nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, obj *eventObject) error {
	paymentID, err := paymentIDFrom(obj)
	if err != nil {
		return err
	}
	if err := s.payments.SetProviderHandles(ctx, paymentID, obj.Customer, obj.ID, obj.PaymentIntent); err != nil {
		return err
	}
	if err := s.payments.ApplySuccessfulPayment(ctx, paymentID); err != nil {
		return err
	}
	return s.payments.RecordAttempt(ctx, &payment.AttemptRecord{
		PaymentID: paymentID,
		Status:    "succeeded",
		Metadata:  map[string]any{"source": types.EventTypeCheckoutCompleted},
	})
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, obj *eventObject) error {
	paymentID, err := paymentIDFrom(obj)
	if err != nil {
		return err
	}
	if err := s.payments.SetProviderHandles(ctx, paymentID, obj.Customer, "", obj.ID); err != nil {
		return err
	}
	return s.payments.ApplySuccessfulPayment(ctx, paymentID)
}

func (s *Service) handlePaymentFailed(ctx context.Context, obj *eventObject) error {
	paymentID, err := paymentIDFrom(obj)
	if err != nil {
		return err
	}
	reason := "payment failed at provider"
	if obj.LastPaymentError != nil && obj.LastPaymentError.Message != "" {
		reason = obj.LastPaymentError.Message
	}
	if err := s.payments.ApplyFailedPayment(ctx, paymentID, reason); err != nil {
		return err
	}
	return s.payments.RecordAttempt(ctx, &payment.AttemptRecord{
		PaymentID:    paymentID,
		Status:       "failed",
		ErrorMessage: reason,
		Metadata:     map[string]any{"source": types.EventTypePaymentFailed},
	})
}

// handleDisputeCreated flags the disputed payment for manual review. No
// local state machine move happens until the dispute resolves.
func (s *Service) handleDisputeCreated(ctx context.Context, obj *eventObject) error {
	if obj.PaymentIntent == "" {
		return errs.Validationf("dispute carries no payment_intent reference")
	}

	var p models.Payment
	err := s.db.WithContext(ctx).Where("provider_intent_id = ?", obj.PaymentIntent).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("payment for intent %s: %w", obj.PaymentIntent, errs.ErrNotFound)
		}
		return fmt.Errorf("failed to load payment for intent %s: %w", obj.PaymentIntent, err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", p.ID).
		Update("metadata", gorm.Expr("metadata || ?", `{"disputed": true}`)).Error; err != nil {
		return fmt.Errorf("failed to flag disputed payment %s: %w", p.ID, err)
	}

	logctx.FromCtx(ctx, s.log).Warnw("payment_disputed",
		"payment_id", p.ID, "dispute_id", obj.ID, "provider_intent_id", obj.PaymentIntent)
	return s.payments.RecordAttempt(ctx, &payment.AttemptRecord{
		PaymentID: p.ID,
		Status:    "disputed",
		Metadata:  map[string]any{"dispute_id": obj.ID},
	})
}
