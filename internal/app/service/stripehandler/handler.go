package stripehandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finflow/reconciler/internal/app/service/eventlog"
	"github.com/finflow/reconciler/internal/app/service/reconciler"
	models "github.com/finflow/reconciler/internal/models"
	"github.com/finflow/reconciler/pkg/config"
	"github.com/finflow/reconciler/pkg/logctx"
	"github.com/finflow/reconciler/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Handler turns verified Stripe webhook events into reconciler calls. The
// raw payload is logged before and after processing.
type Handler struct {
	cfg    *config.Config
	events *eventlog.Service
	rec    *reconciler.Service
	Logger *zap.SugaredLogger
}

func NewHandler(cfg *config.Config, events *eventlog.Service, rec *reconciler.Service, log *zap.SugaredLogger) *Handler {
	return &Handler{cfg: cfg, events: events, rec: rec, Logger: log}
}

// HandleEvent verifies the delivery signature and dispatches the event. A
// non-nil error tells the HTTP layer to return non-2xx so Stripe retries
// delivery. Events this service does not recognize, and subscription IDs it
// never recorded, are acked so the processor stops resending them.
func (h *Handler) HandleEvent(c *gin.Context) (resErr error) {
	payload, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("failed to read webhook body: %w", err)
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.cfg.Stripe.WebhookSecret)
	if err != nil {
		return fmt.Errorf("webhook signature verification failed: %w", err)
	}

	ctx := c.Request.Context()
	var traceID string
	if v, ok := c.Get("traceID"); ok {
		if s, ok2 := v.(string); ok2 {
			traceID = s
		}
	}

	h.events.Save(ctx, &models.WebhookEventLog{
		EventID:   event.ID,
		EventType: string(event.Type),
		TraceID:   traceID,
		EventTime: time.Unix(event.Created, 0),
		Data:      datatypes.JSON(event.Data.Raw),
		Status:    models.WebhookEventLogStatusReceived,
	})

	var userID string
	defer func() {
		resMap := map[string]any{}
		if resErr != nil {
			resMap["error"] = resErr.Error()
		}
		resBytes, _ := json.Marshal(resMap)
		status := models.WebhookEventLogStatusHandled
		if resErr != nil {
			status = models.WebhookEventLogStatusHandleFailed
		}
		h.events.Save(ctx, &models.WebhookEventLog{
			EventID:   event.ID,
			EventType: string(event.Type),
			UserID: func() *string {
				if userID == "" {
					return nil
				}
				return lo.ToPtr(userID)
			}(),
			TraceID:   traceID,
			EventTime: time.Now(),
			Data:      datatypes.JSON(event.Data.Raw),
			Result:    func() *datatypes.JSON { j := datatypes.JSON(resBytes); return &j }(),
			Status:    status,
		})
	}()

	switch string(event.Type) {
	case "checkout.session.completed":
		userID, resErr = h.handleCheckoutCompleted(ctx, event.Data.Raw)
	case "customer.subscription.created", "customer.subscription.updated":
		userID, resErr = h.handleSubscriptionChanged(ctx, event.Data.Raw)
	case "customer.subscription.deleted":
		userID, resErr = h.handleSubscriptionDeleted(ctx, event.Data.Raw)
	default:
		logctx.FromCtx(ctx, h.Logger).Infow("webhook_event_ignored", "event_type", event.Type)
	}
	return resErr
}

// handleCheckoutCompleted records a paid subscription for the user named in
// client_reference_id. The billing window is seeded from the cycle length;
// the authoritative bounds arrive on the customer.subscription events and
// converge onto the same row via the Stripe subscription ID.
func (h *Handler) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) (string, error) {
	var session checkoutSessionPayload
	if err := json.Unmarshal(raw, &session); err != nil {
		return "", fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if session.Mode != "subscription" {
		logctx.FromCtx(ctx, h.Logger).Infow("checkout_session_ignored", "session_id", session.ID, "mode", session.Mode)
		return "", nil
	}
	if session.ClientReferenceID == "" {
		return "", fmt.Errorf("checkout session %s has no client_reference_id", session.ID)
	}

	plan, cycle, err := session.planFromMetadata()
	if err != nil {
		return session.ClientReferenceID, err
	}

	now := time.Now()
	_, err = h.rec.UpgradeFromTrial(ctx, session.ClientReferenceID, plan, cycle,
		session.Subscription, session.Customer, now, cycle.Advance(now))
	return session.ClientReferenceID, err
}

func (h *Handler) handleSubscriptionChanged(ctx context.Context, raw json.RawMessage) (string, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return "", fmt.Errorf("failed to decode subscription payload: %w", err)
	}

	userID, err := h.rec.UserForStripeIDs(ctx, sub.ID, sub.Customer)
	if err != nil {
		return "", err
	}
	if userID == "" {
		logctx.FromCtx(ctx, h.Logger).Warnw("subscription_event_unknown_user",
			"stripe_subscription_id", sub.ID, "stripe_customer_id", sub.Customer)
		return "", nil
	}

	plan, cycle, mapped := planForPriceID(h.cfg, sub.priceID())
	if !mapped {
		logctx.FromCtx(ctx, h.Logger).Warnw("unmapped_price_id",
			"price_id", sub.priceID(), "fallback_plan", plan, "fallback_cycle", cycle)
	}

	periodStart, periodEnd := sub.period()
	stripeStatus := types.ParseStripeStatus(sub.Status)
	_, err = h.rec.Upsert(ctx, reconciler.SubscriptionData{
		UserID:               userID,
		Plan:                 plan,
		BillingCycle:         cycle,
		Status:               stripeStatus.Internal(),
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
		TrialEndsAt:          sub.trialEndsAt(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		StripeSubscriptionID: lo.ToPtr(sub.ID),
		StripeCustomerID:     lo.ToPtr(sub.Customer),
		Reason:               types.ChangeReasonWebhookSync,
	})
	return userID, err
}

func (h *Handler) handleSubscriptionDeleted(ctx context.Context, raw json.RawMessage) (string, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return "", fmt.Errorf("failed to decode subscription payload: %w", err)
	}
	row, err := h.rec.HandleStatusChange(ctx, sub.ID, types.StripeStatusCanceled)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return row.UserID, nil
}
