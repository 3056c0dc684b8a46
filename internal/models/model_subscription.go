package models

import (
	"time"

	"github.com/finflow/reconciler/pkg/types"
)

// Subscription is one subscription row for a user. More than one row may
// exist per user (webhooks are delivered at least once); the reconciler
// collapses them to a single authoritative row. Rows are never deleted,
// canceled rows stay for history.
type Subscription struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index:idx_subscription_user_id" json:"user_id"`
	// AccountID links the row to the user's external auth account when one
	// exists. Credentials-only users have none.
	AccountID          *string                  `gorm:"column:account_id;type:uuid;default:null" json:"account_id"`
	Plan               types.Plan               `gorm:"column:plan;type:varchar(16);not null" json:"plan"`
	BillingCycle       types.BillingCycle       `gorm:"column:billing_cycle;type:varchar(16);not null" json:"billing_cycle"`
	Status             types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CurrentPeriodStart time.Time                `gorm:"column:current_period_start;not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time                `gorm:"column:current_period_end;not null" json:"current_period_end"`
	// TrialEndsAt is set only while trialing.
	TrialEndsAt       *time.Time `gorm:"column:trial_ends_at;default:null" json:"trial_ends_at"`
	CancelAtPeriodEnd bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	// Stripe identifiers are nil for users who were never billed.
	StripeSubscriptionID *string   `gorm:"column:stripe_subscription_id;type:varchar(128);index:idx_subscription_stripe_sub_id" json:"stripe_subscription_id"`
	StripeCustomerID     *string   `gorm:"column:stripe_customer_id;type:varchar(128)" json:"stripe_customer_id"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Live reports whether the row grants access at the given instant: ACTIVE
// with an unexpired period, or TRIALING with an unexpired trial.
func (s *Subscription) Live(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case types.SubscriptionStatusActive:
		return s.CurrentPeriodEnd.After(now)
	case types.SubscriptionStatusTrialing:
		return s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
	}
	return false
}

// Info projects the row into the user-facing view.
func (s *Subscription) Info() *types.SubscriptionInfo {
	if s == nil {
		return nil
	}
	return &types.SubscriptionInfo{
		Plan:               s.Plan,
		BillingCycle:       s.BillingCycle,
		Status:             s.Status,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		TrialEndsAt:        s.TrialEndsAt,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
}
