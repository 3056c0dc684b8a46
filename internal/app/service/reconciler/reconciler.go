package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/finflow/reconciler/internal/models"
	"github.com/finflow/reconciler/pkg/logctx"
	"github.com/finflow/reconciler/pkg/tool"
	"github.com/finflow/reconciler/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GetCurrentSubscription returns the user's authoritative subscription row,
// or nil when the user has no rows at all. No side effects.
func (s *Service) GetCurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	rows, err := s.listUserRows(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription rows: %w", err)
	}
	return Best(rows, time.Now()), nil
}

// Upsert applies the desired state in data to the one row that should hold
// it: the row matching the Stripe subscription ID when one is supplied
// (the durable correlation key across webhook retries), otherwise the
// current best row, otherwise a fresh insert. Every other row for the user
// is retired afterwards. The two writes are not wrapped in a transaction; a
// crash between them leaves extra live-looking rows that the ranking
// tolerates and CleanupDuplicateSubscriptions repairs.
func (s *Service) Upsert(ctx context.Context, data SubscriptionData) (*models.Subscription, error) {
	if !data.Plan.Valid() {
		return nil, fmt.Errorf("invalid plan: %q", data.Plan)
	}
	if !data.BillingCycle.Valid() {
		return nil, fmt.Errorf("invalid billing cycle: %q", data.BillingCycle)
	}
	if !data.Status.Valid() {
		return nil, fmt.Errorf("invalid status: %q", data.Status)
	}
	reason := data.Reason
	if reason == "" {
		reason = types.ChangeReasonCheckout
	}

	accountID, err := s.lookupAccountID(ctx, data.UserID)
	if err != nil {
		return nil, err
	}

	existing, err := s.findExisting(ctx, data)
	if err != nil {
		return nil, err
	}

	row := &models.Subscription{
		UserID:               data.UserID,
		AccountID:            accountID,
		Plan:                 data.Plan,
		BillingCycle:         data.BillingCycle,
		Status:               data.Status,
		CurrentPeriodStart:   data.CurrentPeriodStart,
		CurrentPeriodEnd:     data.CurrentPeriodEnd,
		TrialEndsAt:          data.TrialEndsAt,
		CancelAtPeriodEnd:    data.CancelAtPeriodEnd,
		StripeSubscriptionID: data.StripeSubscriptionID,
		StripeCustomerID:     data.StripeCustomerID,
	}

	if existing != nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		before := *existing

		if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
			return nil, fmt.Errorf("failed to update subscription %s: %w", row.ID, err)
		}
		if err := s.retireOtherRows(ctx, data.UserID, row.ID); err != nil {
			return nil, err
		}
		s.logChange(ctx, reason, &before, row)
		logctx.FromCtx(ctx, s.log).Infow("subscription_updated",
			"user_id", data.UserID, "subscription_id", row.ID, "plan", row.Plan, "status", row.Status, "reason", reason)
		return row, nil
	}

	if err := s.retireOtherRows(ctx, data.UserID, ""); err != nil {
		return nil, err
	}
	row.ID = tool.GenerateUUIDV7()
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	s.logChange(ctx, reason, nil, row)
	logctx.FromCtx(ctx, s.log).Infow("subscription_created",
		"user_id", data.UserID, "subscription_id", row.ID, "plan", row.Plan, "status", row.Status, "reason", reason)
	return row, nil
}

// StartTrial opens a time-boxed trial. Calling it twice collapses to one
// live trial row.
func (s *Service) StartTrial(ctx context.Context, userID string, plan types.Plan, durationDays int) (*models.Subscription, error) {
	now := time.Now()
	trialEnd := now.AddDate(0, 0, durationDays)
	return s.Upsert(ctx, SubscriptionData{
		UserID:             userID,
		Plan:               plan,
		BillingCycle:       types.BillingCycleMonthly,
		Status:             types.SubscriptionStatusTrialing,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   trialEnd,
		TrialEndsAt:        &trialEnd,
		Reason:             types.ChangeReasonTrial,
	})
}

// UpgradeFromTrial moves a user onto a paid subscription after a completed
// checkout. The trial marker is cleared.
func (s *Service) UpgradeFromTrial(ctx context.Context, userID string, plan types.Plan, cycle types.BillingCycle,
	stripeSubID, stripeCustomerID string, periodStart, periodEnd time.Time) (*models.Subscription, error) {
	return s.Upsert(ctx, SubscriptionData{
		UserID:               userID,
		Plan:                 plan,
		BillingCycle:         cycle,
		Status:               types.SubscriptionStatusActive,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
		StripeSubscriptionID: strPtr(stripeSubID),
		StripeCustomerID:     strPtr(stripeCustomerID),
		Reason:               types.ChangeReasonCheckout,
	})
}

// ChangePlan switches an already-paying user to a new plan or billing
// cycle. Same mechanics as UpgradeFromTrial; the distinction is caller
// intent, kept separate so the audit log reads truthfully.
func (s *Service) ChangePlan(ctx context.Context, userID string, plan types.Plan, cycle types.BillingCycle,
	stripeSubID, stripeCustomerID string, periodStart, periodEnd time.Time) (*models.Subscription, error) {
	return s.Upsert(ctx, SubscriptionData{
		UserID:               userID,
		Plan:                 plan,
		BillingCycle:         cycle,
		Status:               types.SubscriptionStatusActive,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
		StripeSubscriptionID: strPtr(stripeSubID),
		StripeCustomerID:     strPtr(stripeCustomerID),
		Reason:               types.ChangeReasonPlanChange,
	})
}

// Cancel marks the user's current subscription for cancellation at period
// end, or cancels it right away when immediately is set. Returns
// ErrNoSubscription when the user has no rows at all.
func (s *Service) Cancel(ctx context.Context, userID string, immediately bool) (*models.Subscription, error) {
	current, err := s.GetCurrentSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNoSubscription
	}

	before := *current
	updates := map[string]any{"cancel_at_period_end": true}
	if immediately {
		updates["status"] = types.SubscriptionStatusCanceled
	}
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", current.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to cancel subscription %s: %w", current.ID, err)
	}

	current.CancelAtPeriodEnd = true
	if immediately {
		current.Status = types.SubscriptionStatusCanceled
	}
	current.UpdatedAt = time.Now()
	s.logChange(ctx, types.ChangeReasonCancel, &before, current)
	logctx.FromCtx(ctx, s.log).Infow("subscription_canceled",
		"user_id", userID, "subscription_id", current.ID, "immediately", immediately)
	return current, nil
}

// HandleStatusChange applies a provider-side status change to the row
// matching the Stripe subscription ID. Unknown IDs are logged and return
// nil without writing anything; webhook delivery is at least once and may
// reference subscriptions this service never created.
func (s *Service) HandleStatusChange(ctx context.Context, stripeSubID string, newStatus types.StripeSubscriptionStatus) (*models.Subscription, error) {
	var row models.Subscription
	err := s.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logctx.FromCtx(ctx, s.log).Warnw("status_change_unknown_subscription", "stripe_subscription_id", stripeSubID, "status", newStatus)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up subscription by stripe id: %w", err)
	}

	internal := newStatus.Internal()
	if newStatus == types.StripeStatusUnknown {
		logctx.FromCtx(ctx, s.log).Warnw("status_change_unrecognized_vocabulary",
			"stripe_subscription_id", stripeSubID, "fallback_status", internal)
	}

	before := row
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", row.ID).Update("status", internal).Error; err != nil {
		return nil, fmt.Errorf("failed to update subscription status: %w", err)
	}
	row.Status = internal
	row.UpdatedAt = time.Now()
	s.logChange(ctx, types.ChangeReasonWebhookStatus, &before, &row)
	return &row, nil
}

// CleanupDuplicateSubscriptions repairs drift: for every user holding more
// than one row it keeps the ranking winner and retires the rest. Returns
// the number of users repaired. Maintenance only, not in the request path.
func (s *Service) CleanupDuplicateSubscriptions(ctx context.Context) (int, error) {
	var dups []struct {
		UserID string
		Cnt    int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("user_id, count(*) as cnt").
		Group("user_id").
		Having("count(*) > 1").
		Scan(&dups).Error; err != nil {
		return 0, fmt.Errorf("failed to scan duplicate users: %w", err)
	}

	repaired := 0
	for _, d := range dups {
		rows, err := s.listUserRows(ctx, d.UserID)
		if err != nil {
			return repaired, fmt.Errorf("failed to list rows for user %s: %w", d.UserID, err)
		}
		keeper := Best(rows, time.Now())
		if keeper == nil {
			continue
		}
		if err := s.retireOtherRows(ctx, d.UserID, keeper.ID); err != nil {
			return repaired, err
		}
		repaired++
		logctx.FromCtx(ctx, s.log).Infow("duplicate_subscriptions_cleaned",
			"user_id", d.UserID, "rows", d.Cnt, "kept", keeper.ID)
	}
	return repaired, nil
}

// UserForStripeIDs resolves the owning user for provider identifiers, by
// subscription ID first and customer ID second. Returns "" when neither
// matches; webhook events for subscriptions this service never recorded
// are an expected steady state, not an error.
func (s *Service) UserForStripeIDs(ctx context.Context, stripeSubID, stripeCustomerID string) (string, error) {
	for _, cond := range []struct{ col, val string }{
		{"stripe_subscription_id", stripeSubID},
		{"stripe_customer_id", stripeCustomerID},
	} {
		if cond.val == "" {
			continue
		}
		var row models.Subscription
		err := s.db.WithContext(ctx).
			Where(cond.col+" = ?", cond.val).
			Order("updated_at desc").First(&row).Error
		if err == nil {
			return row.UserID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("failed to look up user by %s: %w", cond.col, err)
		}
	}
	return "", nil
}

func (s *Service) listUserRows(ctx context.Context, userID string) ([]*models.Subscription, error) {
	var rows []*models.Subscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) findExisting(ctx context.Context, data SubscriptionData) (*models.Subscription, error) {
	if data.StripeSubscriptionID != nil && *data.StripeSubscriptionID != "" {
		var row models.Subscription
		err := s.db.WithContext(ctx).
			Where("stripe_subscription_id = ?", *data.StripeSubscriptionID).First(&row).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up subscription by stripe id: %w", err)
		}
	}

	rows, err := s.listUserRows(ctx, data.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription rows: %w", err)
	}
	return Best(rows, time.Now()), nil
}

// retireOtherRows is the post-condition enforcer behind the one-live-row
// invariant: every row for the user except keepID becomes CANCELED with
// cancelAtPeriodEnd set. An empty keepID retires all rows.
func (s *Service) retireOtherRows(ctx context.Context, userID, keepID string) error {
	q := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Where("status <> ?", types.SubscriptionStatusCanceled)
	if keepID != "" {
		q = q.Where("id <> ?", keepID)
	}
	if err := q.Updates(map[string]any{
		"status":               types.SubscriptionStatusCanceled,
		"cancel_at_period_end": true,
	}).Error; err != nil {
		return fmt.Errorf("failed to retire other subscription rows: %w", err)
	}
	return nil
}

// lookupAccountID resolves the optional auth-account linkage. Missing rows
// are expected for credentials-only users and are not an error.
func (s *Service) lookupAccountID(ctx context.Context, userID string) (*string, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account for user %s: %w", userID, err)
	}
	return &acct.ID, nil
}

// logChange writes the audit row asynchronously; failures are logged but
// never fail the change itself.
func (s *Service) logChange(ctx context.Context, reason types.ChangeReason, before, after *models.Subscription) {
	go func() {
		entry := &models.SubscriptionLog{
			ID:     tool.GenerateUUIDV7(),
			UserID: after.UserID,
			Reason: reason,
			Before: datatypes.NewJSONType(before),
			After:  datatypes.NewJSONType(after),
			Extra:  datatypes.JSONMap{},
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription log: %v", err)
		}
	}()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
