package stripehandler

import (
	"fmt"
	"time"

	"github.com/finflow/reconciler/pkg/config"
	"github.com/finflow/reconciler/pkg/types"
)

// checkoutSessionPayload is the slice of a checkout.session.completed
// payload this service reads. Customer and subscription arrive as string
// IDs on webhook deliveries.
type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// planFromMetadata reads the plan and billing-cycle metadata strings set at
// checkout-session creation. Unrecognized values are rejected here rather
// than persisted.
func (p *checkoutSessionPayload) planFromMetadata() (types.Plan, types.BillingCycle, error) {
	plan, err := types.ParsePlan(p.Metadata["plan"])
	if err != nil {
		return "", "", fmt.Errorf("checkout session %s: %w", p.ID, err)
	}
	cycle, err := types.ParseBillingCycle(p.Metadata["billing_cycle"])
	if err != nil {
		return "", "", fmt.Errorf("checkout session %s: %w", p.ID, err)
	}
	return plan, cycle, nil
}

// subscriptionPayload is the slice of a customer.subscription.* payload
// this service reads. Trial and period boundaries are epoch seconds.
type subscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	TrialEnd           int64  `json:"trial_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (p *subscriptionPayload) priceID() string {
	if len(p.Items.Data) == 0 {
		return ""
	}
	return p.Items.Data[0].Price.ID
}

func (p *subscriptionPayload) period() (time.Time, time.Time) {
	return time.Unix(p.CurrentPeriodStart, 0), time.Unix(p.CurrentPeriodEnd, 0)
}

func (p *subscriptionPayload) trialEndsAt() *time.Time {
	if p.TrialEnd == 0 {
		return nil
	}
	t := time.Unix(p.TrialEnd, 0)
	return &t
}

// planForPriceID maps a Stripe price ID to a plan and billing cycle via the
// configured price map. Unmapped price IDs fall back to GOLD MONTHLY; the
// second return value tells the caller to log the miss.
func planForPriceID(cfg *config.Config, priceID string) (types.Plan, types.BillingCycle, bool) {
	switch priceID {
	case cfg.Stripe.PriceIDs.SilverMonthly:
		return types.PlanSilver, types.BillingCycleMonthly, true
	case cfg.Stripe.PriceIDs.SilverAnnual:
		return types.PlanSilver, types.BillingCycleAnnual, true
	case cfg.Stripe.PriceIDs.GoldMonthly:
		return types.PlanGold, types.BillingCycleMonthly, true
	case cfg.Stripe.PriceIDs.GoldAnnual:
		return types.PlanGold, types.BillingCycleAnnual, true
	}
	return types.PlanGold, types.BillingCycleMonthly, false
}
