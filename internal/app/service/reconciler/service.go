package reconciler

import (
	"errors"
	"time"

	"github.com/finflow/reconciler/pkg/config"
	"github.com/finflow/reconciler/pkg/types"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoSubscription is returned when an operation requires a subscription
// row and the user has none at all.
var ErrNoSubscription = errors.New("no subscription found for user")

// Service reconciles subscription rows: one authoritative row per user,
// derived from checkout/webhook/manual events. Concurrent deliveries for
// the same user are not mutually excluded; duplicate live rows are an
// accepted transient state, healed by retireOtherRows and by the ranking
// in Best always picking a single winner.
type Service struct {
	cfg *config.Config
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, log: log}
}

// SubscriptionData describes the desired subscription state for a user.
type SubscriptionData struct {
	UserID             string
	Plan               types.Plan
	BillingCycle       types.BillingCycle
	Status             types.SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEndsAt        *time.Time
	CancelAtPeriodEnd  bool

	StripeSubscriptionID *string
	StripeCustomerID     *string

	// Reason is recorded on the audit log row for this change.
	Reason types.ChangeReason
}
