package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/logctx"
	"github.com/fatflowers/teller/pkg/tool"
	"github.com/fatflowers/teller/pkg/types"
)

// Service owns subscription state changes, the history ledger, and the
// pinned-post entitlement. Transition methods come in Tx form so the
// orchestrators can compose them into a single atomic unit with their
// payment transitions.
type Service struct {
	cfg *config.Config
	log *zap.SugaredLogger
	db  *gorm.DB
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, db *gorm.DB) *Service {
	return &Service{cfg: cfg, log: log, db: db}
}

// HasOpenSubscriptionTx reports whether the user already holds a pending
// or active subscription.
func (s *Service) HasOpenSubscriptionTx(ctx context.Context, tx *gorm.DB, userID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND status IN ?", userID, []types.SubscriptionStatus{types.SubscriptionStatusPending, types.SubscriptionStatusActive}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count open subscriptions: %w", err)
	}
	return count > 0, nil
}

// GetUserSubscription returns the user's most recent subscription.
func (s *Service) GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subscription for user %s: %w", userID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (s *Service) getTx(ctx context.Context, tx *gorm.DB, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subscription %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load subscription %s: %w", id, err)
	}
	return &sub, nil
}

// ActivateTx moves a pending subscription to active and opens its
// entitlement window from the plan duration.
func (s *Service) ActivateTx(ctx context.Context, tx *gorm.DB, subID string, meta datatypes.JSONMap) error {
	sub, err := s.getTx(ctx, tx, subID)
	if err != nil {
		return err
	}

	plan := s.cfg.GetPlanByID(sub.PlanID)
	if plan == nil {
		return fmt.Errorf("plan %s for subscription %s: %w", sub.PlanID, sub.ID, errs.ErrNotFound)
	}

	if err := sub.TransitionTo(types.SubscriptionStatusActive); err != nil {
		return err
	}

	now := time.Now()
	end := now.Add(plan.Duration())
	sub.StartDate = &now
	sub.EndDate = &end

	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", sub.ID, err)
	}

	return s.RecordHistoryTx(ctx, tx, sub.ID, types.HistoryActionActivated,
		"Subscription activated after successful payment", meta)
}

// CancelTx moves a pending or active subscription to canceled and drops
// the user's pinned post, writing the given history action.
func (s *Service) CancelTx(ctx context.Context, tx *gorm.DB, subID string, action types.HistoryAction, description string, meta datatypes.JSONMap) error {
	sub, err := s.getTx(ctx, tx, subID)
	if err != nil {
		return err
	}

	if err := sub.TransitionTo(types.SubscriptionStatusCanceled); err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", sub.ID, err)
	}

	if err := s.removePinnedPostTx(ctx, tx, sub.UserID); err != nil {
		return err
	}

	return s.RecordHistoryTx(ctx, tx, sub.ID, action, description, meta)
}

// ExpireTx moves an active subscription past its end date to expired,
// removing dependent entitlement records.
func (s *Service) ExpireTx(ctx context.Context, tx *gorm.DB, sub *models.Subscription) (pinsRemoved int64, err error) {
	if err := sub.TransitionTo(types.SubscriptionStatusExpired); err != nil {
		return 0, err
	}
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return 0, fmt.Errorf("failed to save subscription %s: %w", sub.ID, err)
	}

	res := tx.WithContext(ctx).Where("user_id = ?", sub.UserID).Delete(&models.PinnedPost{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete pinned post: %w", res.Error)
	}

	if err := s.RecordHistoryTx(ctx, tx, sub.ID, types.HistoryActionExpired, "Subscription expired", nil); err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// RecordHistoryTx appends one row to the subscription history ledger.
func (s *Service) RecordHistoryTx(ctx context.Context, tx *gorm.DB, subID string, action types.HistoryAction, description string, meta datatypes.JSONMap) error {
	if meta == nil {
		meta = datatypes.JSONMap{}
	}
	entry := &models.SubscriptionHistory{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: subID,
		Action:         action,
		Description:    description,
		Metadata:       meta,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record subscription history: %w", err)
	}
	return nil
}

func (s *Service) removePinnedPostTx(ctx context.Context, tx *gorm.DB, userID string) error {
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.PinnedPost{}).Error; err != nil {
		return fmt.Errorf("failed to delete pinned post: %w", err)
	}
	return nil
}

// ListHistory returns the ledger for one subscription, newest first.
func (s *Service) ListHistory(ctx context.Context, subID string) ([]*models.SubscriptionHistory, error) {
	var entries []*models.SubscriptionHistory
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subID).
		Order("created_at desc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription history: %w", err)
	}
	return entries, nil
}

// PinPost grants the pin entitlement. Requires a currently-active
// subscription; one pin per user, re-pinning replaces the previous one.
func (s *Service) PinPost(ctx context.Context, userID, postID string) (*models.PinnedPost, error) {
	if postID == "" {
		return nil, errs.Validationf("post id required")
	}

	var pinned *models.PinnedPost
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		err := tx.WithContext(ctx).
			Where("user_id = ? AND status = ?", userID, types.SubscriptionStatusActive).
			First(&sub).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.Conflictf("user %s has no active subscription", userID)
			}
			return fmt.Errorf("failed to load subscription: %w", err)
		}
		if !sub.IsActive(time.Now()) {
			return errs.Conflictf("subscription %s is not inside its entitlement window", sub.ID)
		}

		if err := s.removePinnedPostTx(ctx, tx, userID); err != nil {
			return err
		}

		pinned = &models.PinnedPost{ID: tool.GenerateUUIDV7(), UserID: userID, PostID: postID}
		if err := tx.WithContext(ctx).Create(pinned).Error; err != nil {
			return fmt.Errorf("failed to create pinned post: %w", err)
		}

		return s.RecordHistoryTx(ctx, tx, sub.ID, types.HistoryActionPostPinned,
			fmt.Sprintf("Post %s pinned", postID), datatypes.JSONMap{"post_id": postID})
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("post_pinned", "user_id", userID, "post_id", postID)
	return pinned, nil
}

// UnpinPost withdraws the pin entitlement.
func (s *Service) UnpinPost(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pinned models.PinnedPost
		err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&pinned).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("pinned post for user %s: %w", userID, errs.ErrNotFound)
			}
			return fmt.Errorf("failed to load pinned post: %w", err)
		}

		if err := tx.WithContext(ctx).Delete(&pinned).Error; err != nil {
			return fmt.Errorf("failed to delete pinned post: %w", err)
		}

		var sub models.Subscription
		if err := tx.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at desc").
			First(&sub).Error; err == nil {
			return s.RecordHistoryTx(ctx, tx, sub.ID, types.HistoryActionPostUnpinned,
				fmt.Sprintf("Post %s unpinned", pinned.PostID), datatypes.JSONMap{"post_id": pinned.PostID})
		}
		return nil
	})
}
