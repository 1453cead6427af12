package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
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

// planFor resolves the plan a payment was opened for via the plan_id
// stamped into its metadata at creation.
func (s *Service) planFor(p *models.Payment) *types.Plan {
	planID, _ := p.Metadata["plan_id"].(string)
	if planID == "" {
		return nil
	}
	return s.cfg.GetPlanByID(planID)
}

func (s *Service) CreateSubscriptionPayment(ctx context.Context, req *CreatePaymentRequest) (*models.Payment, *models.Subscription, error) {
	plan := s.cfg.GetPlanByID(req.PlanID)
	if plan == nil {
		return nil, nil, fmt.Errorf("plan %s: %w", req.PlanID, errs.ErrNotFound)
	}
	if !plan.Active {
		return nil, nil, errs.Validationf("plan %s is not purchasable", plan.ID)
	}

	var payment *models.Payment
	var sub *models.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := s.subSvc.HasOpenSubscriptionTx(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if open {
			return errs.Conflictf("user %s already has a pending or active subscription", req.UserID)
		}

		sub = &models.Subscription{
			ID:     tool.GenerateUUIDV7(),
			UserID: req.UserID,
			PlanID: plan.ID,
			Status: types.SubscriptionStatusPending,
		}
		if err := tx.WithContext(ctx).Create(sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}

		payment = &models.Payment{
			ID:             tool.GenerateUUIDV7(),
			UserID:         req.UserID,
			SubscriptionID: lo.ToPtr(sub.ID),
			Amount:         plan.Price,
			Currency:       plan.Currency,
			Status:         types.PaymentStatusPending,
			PaymentMethod:  types.PaymentProviderStripe,
			Description:    fmt.Sprintf("Subscription - %s", plan.Name),
			Metadata:       datatypes.JSONMap{"plan_id": plan.ID},
		}
		if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		return s.subSvc.RecordHistoryTx(ctx, tx, sub.ID, types.HistoryActionCreated,
			fmt.Sprintf("Subscription created for plan %s", plan.Name),
			datatypes.JSONMap{"payment_id": payment.ID})
	})
	if err != nil {
		return nil, nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("subscription_payment_created",
		"payment_id", payment.ID, "subscription_id", sub.ID, "plan_id", plan.ID)
	return payment, sub, nil
}

func (s *Service) InitiateCheckout(ctx context.Context, req *CheckoutRequest) (*gateway.CheckoutSession, error) {
	payment, err := s.GetUserPayment(ctx, req.PaymentID, req.UserID)
	if err != nil {
		return nil, err
	}
	if payment.Status != types.PaymentStatusPending {
		return nil, errs.Conflictf("payment %s is %s, expected pending", payment.ID, payment.Status)
	}

	if payment.ProviderCustomerID == nil || *payment.ProviderCustomerID == "" {
		customerID, err := s.gw.CreateCustomer(ctx, gateway.CustomerInfo{
			UserID: req.UserID,
			Email:  req.Email,
			Name:   req.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("initiate checkout: %w", err)
		}
		payment.ProviderCustomerID = lo.ToPtr(customerID)
		if err := s.SetProviderHandles(ctx, payment.ID, customerID, "", ""); err != nil {
			return nil, err
		}
	}

	successURL := lo.Ternary(req.SuccessURL != "", req.SuccessURL, s.cfg.Stripe.SuccessURL)
	cancelURL := lo.Ternary(req.CancelURL != "", req.CancelURL, s.cfg.Stripe.CancelURL)

	productName := payment.Description
	priceID := ""
	if plan := s.planFor(payment); plan != nil {
		productName = fmt.Sprintf("Subscription - %s", plan.Name)
		priceID = plan.StripePriceID
	}

	sess, err := s.gw.CreateCheckoutSession(ctx, payment, productName, priceID, successURL, cancelURL)
	if err != nil {
		// No checkout session was issued, so the attempt is dead: map the
		// gateway failure straight into a terminal local state.
		if failErr := s.ApplyFailedPayment(ctx, payment.ID, err.Error()); failErr != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to fail payment after gateway error",
				"payment_id", payment.ID, "error", failErr.Error())
		}
		return nil, fmt.Errorf("initiate checkout: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.getForUpdateTx(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if err := p.TransitionTo(types.PaymentStatusProcessing, time.Now()); err != nil {
			return err
		}
		p.ProviderSessionID = lo.ToPtr(sess.SessionID)
		if err := tx.WithContext(ctx).Save(p).Error; err != nil {
			return fmt.Errorf("failed to save payment %s: %w", p.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("checkout_session_created",
		"payment_id", payment.ID, "session_id", sess.SessionID)
	return sess, nil
}

func (s *Service) ApplySuccessfulPayment(ctx context.Context, paymentID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.getForUpdateTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		// Reconciling an already-settled payment is not a conflict: the
		// provider told us something we already know.
		if payment.IsSuccessful() {
			return nil
		}

		if err := payment.TransitionTo(types.PaymentStatusSucceeded, time.Now()); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Save(payment).Error; err != nil {
			return fmt.Errorf("failed to save payment %s: %w", payment.ID, err)
		}

		if payment.SubscriptionID != nil {
			if err := s.subSvc.ActivateTx(ctx, tx, *payment.SubscriptionID,
				datatypes.JSONMap{"payment_id": payment.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply successful payment %s: %w", paymentID, err)
	}

	logctx.FromCtx(ctx, s.log).Infow("payment_succeeded", "payment_id", paymentID)
	return nil
}

func (s *Service) ApplyFailedPayment(ctx context.Context, paymentID, reason string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.getForUpdateTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == types.PaymentStatusFailed {
			return nil
		}

		if err := payment.TransitionTo(types.PaymentStatusFailed, time.Now()); err != nil {
			return err
		}
		if payment.Metadata == nil {
			payment.Metadata = datatypes.JSONMap{}
		}
		if reason != "" {
			payment.Metadata["failure_reason"] = reason
		}
		if err := tx.WithContext(ctx).Save(payment).Error; err != nil {
			return fmt.Errorf("failed to save payment %s: %w", payment.ID, err)
		}

		if payment.SubscriptionID != nil {
			if err := s.subSvc.CancelTx(ctx, tx, *payment.SubscriptionID,
				types.HistoryActionPaymentFailed,
				fmt.Sprintf("Subscription canceled: %s", lo.Ternary(reason != "", reason, "payment failed")),
				datatypes.JSONMap{"payment_id": payment.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply failed payment %s: %w", paymentID, err)
	}

	logctx.FromCtx(ctx, s.log).Infow("payment_failed", "payment_id", paymentID, "reason", reason)
	return nil
}

func (s *Service) CancelPayment(ctx context.Context, paymentID, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.getForUpdateTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.UserID != userID {
			return fmt.Errorf("payment %s: %w", paymentID, errs.ErrNotFound)
		}
		if !payment.IsPending() {
			return errs.Conflictf("payment %s is %s, only pending payments can be canceled", payment.ID, payment.Status)
		}

		if err := payment.TransitionTo(types.PaymentStatusCanceled, time.Now()); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Save(payment).Error; err != nil {
			return fmt.Errorf("failed to save payment %s: %w", payment.ID, err)
		}

		if payment.SubscriptionID != nil {
			if err := s.subSvc.CancelTx(ctx, tx, *payment.SubscriptionID,
				types.HistoryActionCanceled, "Subscription canceled with payment",
				datatypes.JSONMap{"payment_id": payment.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel payment %s: %w", paymentID, err)
	}

	logctx.FromCtx(ctx, s.log).Infow("payment_canceled", "payment_id", paymentID)
	return nil
}

func (s *Service) RefreshFromSession(ctx context.Context, paymentID, userID string) (*models.Payment, error) {
	payment, err := s.GetUserPayment(ctx, paymentID, userID)
	if err != nil {
		return nil, err
	}

	if payment.Status.Terminal() || payment.ProviderSessionID == nil {
		return payment, nil
	}

	status, err := s.gw.RetrieveSessionStatus(ctx, *payment.ProviderSessionID)
	if err != nil {
		// The payment stays pending; the webhook or a later poll settles it.
		logctx.FromCtx(ctx, s.log).Warnw("session_status_unavailable",
			"payment_id", payment.ID, "error", err.Error())
		return payment, nil
	}

	switch status.Status {
	case gateway.SessionStatusComplete:
		if err := s.SetProviderHandles(ctx, payment.ID, status.CustomerID, "", status.IntentID); err != nil {
			return nil, err
		}
		if err := s.ApplySuccessfulPayment(ctx, payment.ID); err != nil {
			return nil, err
		}
	case gateway.SessionStatusExpired:
		if err := s.ApplyFailedPayment(ctx, payment.ID, "checkout session expired"); err != nil {
			return nil, err
		}
	}

	return s.GetUserPayment(ctx, paymentID, userID)
}

func (s *Service) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %s: %w", paymentID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	return &payment, nil
}

func (s *Service) GetUserPayment(ctx context.Context, paymentID, userID string) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, fmt.Errorf("payment %s: %w", paymentID, errs.ErrNotFound)
	}
	return payment, nil
}

func (s *Service) ListUserPayments(ctx context.Context, userID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

func (s *Service) ScanPayments(ctx context.Context, req *ScanPaymentsRequest) (*ScanPaymentsResponse, error) {
	if req == nil {
		return nil, errs.Validationf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Payment{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	var rows []*models.Payment
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return &ScanPaymentsResponse{Items: rows, Total: total}, nil
}

func (s *Service) SetProviderHandles(ctx context.Context, paymentID, customerID, sessionID, intentID string) error {
	updates := map[string]any{}
	if customerID != "" {
		updates["provider_customer_id"] = customerID
	}
	if sessionID != "" {
		updates["provider_session_id"] = sessionID
	}
	if intentID != "" {
		updates["provider_intent_id"] = intentID
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", paymentID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to set provider handles on payment %s: %w", paymentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", paymentID, errs.ErrNotFound)
	}
	return nil
}

func (s *Service) RecordAttempt(ctx context.Context, rec *AttemptRecord) error {
	attempt := &models.PaymentAttempt{
		ID:        tool.GenerateUUIDV7(),
		PaymentID: rec.PaymentID,
		Status:    rec.Status,
		Metadata:  datatypes.JSONMap(rec.Metadata),
	}
	if rec.ProviderChargeID != "" {
		attempt.ProviderChargeID = lo.ToPtr(rec.ProviderChargeID)
	}
	if rec.ErrorMessage != "" {
		attempt.ErrorMessage = lo.ToPtr(rec.ErrorMessage)
	}
	if attempt.Metadata == nil {
		attempt.Metadata = datatypes.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record payment attempt: %w", err)
	}
	return nil
}

// getForUpdateTx loads a payment with a row lock so concurrent webhook
// deliveries for the same payment serialize on the transition.
func (s *Service) getForUpdateTx(ctx context.Context, tx *gorm.DB, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", paymentID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %s: %w", paymentID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	return &payment, nil
}
