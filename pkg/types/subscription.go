package types

import (
	"fmt"
	"time"
)

// Plan is the subscription tier.
type Plan string

const (
	PlanSilver Plan = "SILVER"
	PlanGold   Plan = "GOLD"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanSilver, PlanGold:
		return true
	}
	return false
}

// ParsePlan rejects unrecognized plan strings at the boundary.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", fmt.Errorf("unrecognized plan: %q", s)
	}
	return p, nil
}

// BillingCycle is the billing frequency.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleAnnual  BillingCycle = "ANNUAL"
)

func (b BillingCycle) Valid() bool {
	switch b {
	case BillingCycleMonthly, BillingCycleAnnual:
		return true
	}
	return false
}

// ParseBillingCycle rejects unrecognized billing-cycle strings at the boundary.
func ParseBillingCycle(s string) (BillingCycle, error) {
	b := BillingCycle(s)
	if !b.Valid() {
		return "", fmt.Errorf("unrecognized billing cycle: %q", s)
	}
	return b, nil
}

// Advance returns the end of one billing window starting at t.
func (b BillingCycle) Advance(t time.Time) time.Time {
	if b == BillingCycleAnnual {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// SubscriptionStatus is the internal subscription lifecycle state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusTrialing SubscriptionStatus = "TRIALING"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusCanceled, SubscriptionStatusPastDue:
		return true
	}
	return false
}

// ChangeReason records why a subscription row changed.
type ChangeReason string

const (
	ChangeReasonTrial         ChangeReason = "trial"
	ChangeReasonCheckout      ChangeReason = "checkout"
	ChangeReasonPlanChange    ChangeReason = "planChange"
	ChangeReasonCancel        ChangeReason = "cancel"
	ChangeReasonWebhookSync   ChangeReason = "webhookSync"
	ChangeReasonWebhookStatus ChangeReason = "webhookStatus"
	ChangeReasonCleanup       ChangeReason = "cleanup"
)

// StripeSubscriptionStatus is the status vocabulary Stripe puts on webhook
// payloads. Unknown is a designated variant for vocabulary this service has
// never seen.
type StripeSubscriptionStatus string

const (
	StripeStatusActive   StripeSubscriptionStatus = "active"
	StripeStatusTrialing StripeSubscriptionStatus = "trialing"
	StripeStatusCanceled StripeSubscriptionStatus = "canceled"
	StripeStatusPastDue  StripeSubscriptionStatus = "past_due"
	StripeStatusUnknown  StripeSubscriptionStatus = "unknown"
)

// ParseStripeStatus maps the raw provider string to the closed vocabulary.
// Terminal provider states that end access (unpaid, incomplete_expired) map
// to canceled; anything unrecognized maps to Unknown.
func ParseStripeStatus(s string) StripeSubscriptionStatus {
	switch s {
	case "active":
		return StripeStatusActive
	case "trialing":
		return StripeStatusTrialing
	case "canceled", "unpaid", "incomplete_expired":
		return StripeStatusCanceled
	case "past_due":
		return StripeStatusPastDue
	}
	return StripeStatusUnknown
}

// Internal maps the provider vocabulary to the internal enum. Unknown
// resolves to ACTIVE: an unrecognized provider status must never end a
// paying user's access. Flagged for product confirmation; keep the fallback
// until they decide otherwise.
func (s StripeSubscriptionStatus) Internal() SubscriptionStatus {
	switch s {
	case StripeStatusTrialing:
		return SubscriptionStatusTrialing
	case StripeStatusCanceled:
		return SubscriptionStatusCanceled
	case StripeStatusPastDue:
		return SubscriptionStatusPastDue
	}
	return SubscriptionStatusActive
}

// SubscriptionInfo is the read-path view rendered to users.
type SubscriptionInfo struct {
	Plan               Plan               `json:"plan"`
	BillingCycle       BillingCycle       `json:"billing_cycle"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
}
