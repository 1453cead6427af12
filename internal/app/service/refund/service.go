package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/teller/internal/app/service/gateway"
	"github.com/fatflowers/teller/internal/app/service/subscription"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/logctx"
	"github.com/fatflowers/teller/pkg/tool"
	"github.com/fatflowers/teller/pkg/types"
)

// CreateRefundRequest asks the provider to return money on a settled
// payment. A nil Amount refunds whatever is still refundable.
type CreateRefundRequest struct {
	PaymentID string           `json:"payment_id"`
	Amount    *decimal.Decimal `json:"amount"`
	Reason    string           `json:"reason"`
	CreatedBy string           `json:"created_by"`
}

// Orchestrator drives refunds. Local state only moves after the
// provider call returns; a provider failure never touches the payment.
type Orchestrator interface {
	// CreateRefund validates the request, calls the provider, and applies
	// the outcome. When cumulative succeeded refunds reach the payment
	// amount the payment moves to refunded and its subscription is
	// canceled in the same transaction.
	CreateRefund(ctx context.Context, req *CreateRefundRequest) (*models.Refund, error)
	// CancelRefund withdraws a pending refund before any provider call
	// settled it.
	CancelRefund(ctx context.Context, refundID string) error
	GetRefund(ctx context.Context, refundID string) (*models.Refund, error)
	ListRefunds(ctx context.Context, paymentID string) ([]*models.Refund, error)
}

type Service struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	db     *gorm.DB
	gw     gateway.PaymentGateway
	subSvc *subscription.Service
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, db *gorm.DB, gw gateway.PaymentGateway, subSvc *subscription.Service) Orchestrator {
	return &Service{cfg: cfg, log: log, db: db, gw: gw, subSvc: subSvc}
}

func (s *Service) CreateRefund(ctx context.Context, req *CreateRefundRequest) (*models.Refund, error) {
	if req == nil || req.PaymentID == "" {
		return nil, errs.Validationf("payment id required")
	}

	// Validation and the pending insert run under the payment row lock
	// so concurrent refunds against one payment serialize. A pending
	// refund reserves its amount until it settles or fails, keeping the
	// sum of live refunds inside the payment amount.
	var payment models.Payment
	var refund *models.Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", req.PaymentID).
			First(&payment).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("payment %s: %w", req.PaymentID, errs.ErrNotFound)
			}
			return fmt.Errorf("failed to load payment %s: %w", req.PaymentID, err)
		}
		if !payment.CanBeRefunded() {
			return errs.Conflictf("payment %s is %s via %s and cannot be refunded",
				payment.ID, payment.Status, payment.PaymentMethod)
		}

		reserved, err := s.refundTotal(ctx, tx, payment.ID,
			types.RefundStatusPending, types.RefundStatusSucceeded)
		if err != nil {
			return err
		}
		remaining := payment.Amount.Sub(reserved)

		amount := remaining
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return errs.Validationf("refund amount must be positive")
		}
		if amount.GreaterThan(remaining) {
			return errs.Validationf("refund amount %s exceeds refundable balance %s",
				amount.StringFixed(2), remaining.StringFixed(2))
		}

		refund = &models.Refund{
			ID:        tool.GenerateUUIDV7(),
			PaymentID: payment.ID,
			Amount:    amount,
			Reason:    req.Reason,
			Status:    types.RefundStatusPending,
			CreatedBy: req.CreatedBy,
		}
		if err := tx.WithContext(ctx).Create(refund).Error; err != nil {
			return fmt.Errorf("failed to create refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	amount := refund.Amount

	providerRefundID, gwErr := s.gw.RefundPayment(ctx, &payment, &amount, req.Reason)
	if gwErr != nil {
		// The money never moved. The refund row records the attempt; the
		// payment stays exactly as it was.
		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := refund.TransitionTo(types.RefundStatusFailed, time.Now()); err != nil {
				return err
			}
			return tx.WithContext(ctx).Save(refund).Error
		}); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to mark refund failed",
				"refund_id", refund.ID, "error", err.Error())
		}
		return refund, fmt.Errorf("create refund for payment %s: %w", payment.ID, gwErr)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := refund.TransitionTo(types.RefundStatusSucceeded, time.Now()); err != nil {
			return err
		}
		refund.ProviderRefundID = lo.ToPtr(providerRefundID)
		if err := tx.WithContext(ctx).Save(refund).Error; err != nil {
			return fmt.Errorf("failed to save refund %s: %w", refund.ID, err)
		}

		total, err := s.refundTotal(ctx, tx, payment.ID, types.RefundStatusSucceeded)
		if err != nil {
			return err
		}
		if total.GreaterThanOrEqual(payment.Amount) {
			return s.cascadeFullRefundTx(ctx, tx, payment.ID, refund.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("refund_succeeded",
		"refund_id", refund.ID, "payment_id", payment.ID,
		"amount", amount.StringFixed(2), "provider_refund_id", providerRefundID)
	return refund, nil
}

// cascadeFullRefundTx moves the fully-refunded payment to refunded and
// cancels its subscription, with a history entry tying the cascade to
// the triggering refund.
func (s *Service) cascadeFullRefundTx(ctx context.Context, tx *gorm.DB, paymentID, refundID string) error {
	var payment models.Payment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", paymentID).
		First(&payment).Error
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}

	if err := payment.TransitionTo(types.PaymentStatusRefunded, time.Now()); err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Save(&payment).Error; err != nil {
		return fmt.Errorf("failed to save payment %s: %w", payment.ID, err)
	}

	if payment.SubscriptionID != nil {
		if err := s.subSvc.CancelTx(ctx, tx, *payment.SubscriptionID,
			types.HistoryActionRefunded, "Subscription canceled after full refund",
			datatypes.JSONMap{"payment_id": payment.ID, "refund_id": refundID}); err != nil {
			// The subscription may already be canceled or expired; the
			// refund itself still stands.
			if errors.Is(err, errs.ErrStateConflict) {
				logctx.FromCtx(ctx, s.log).Infow("refund_cascade_subscription_closed",
					"subscription_id", *payment.SubscriptionID, "payment_id", payment.ID)
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *Service) refundTotal(ctx context.Context, tx *gorm.DB, paymentID string, statuses ...types.RefundStatus) (decimal.Decimal, error) {
	var refunds []*models.Refund
	err := tx.WithContext(ctx).
		Where("payment_id = ? AND status IN ?", paymentID, statuses).
		Find(&refunds).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum refunds for payment %s: %w", paymentID, err)
	}
	total := decimal.Zero
	for _, r := range refunds {
		total = total.Add(r.Amount)
	}
	return total, nil
}

func (s *Service) CancelRefund(ctx context.Context, refundID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refund models.Refund
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", refundID).
			First(&refund).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("refund %s: %w", refundID, errs.ErrNotFound)
			}
			return fmt.Errorf("failed to load refund %s: %w", refundID, err)
		}

		if err := refund.TransitionTo(types.RefundStatusCanceled, time.Now()); err != nil {
			return err
		}
		return tx.WithContext(ctx).Save(&refund).Error
	})
	if err != nil {
		return err
	}

	logctx.FromCtx(ctx, s.log).Infow("refund_canceled", "refund_id", refundID)
	return nil
}

func (s *Service) GetRefund(ctx context.Context, refundID string) (*models.Refund, error) {
	var refund models.Refund
	if err := s.db.WithContext(ctx).Where("id = ?", refundID).First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("refund %s: %w", refundID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load refund %s: %w", refundID, err)
	}
	return &refund, nil
}

func (s *Service) ListRefunds(ctx context.Context, paymentID string) ([]*models.Refund, error) {
	var refunds []*models.Refund
	err := s.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at desc").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}
