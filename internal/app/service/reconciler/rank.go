package reconciler

import (
	"slices"
	"time"

	models "github.com/finflow/reconciler/internal/models"
	"github.com/finflow/reconciler/pkg/types"

	"github.com/samber/lo"
)

// Best picks the authoritative row out of a user's subscription rows:
//  1. ACTIVE with an unexpired period
//  2. TRIALING with an unexpired trial
//  3. the most recently updated row, even if expired or canceled
//
// Pure over its inputs; returns nil only for an empty slice. The input is
// not mutated.
func Best(rows []*models.Subscription, now time.Time) *models.Subscription {
	if len(rows) == 0 {
		return nil
	}

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b *models.Subscription) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	if active, ok := lo.Find(sorted, func(s *models.Subscription) bool {
		return s.Status == types.SubscriptionStatusActive && s.CurrentPeriodEnd.After(now)
	}); ok {
		return active
	}

	if trialing, ok := lo.Find(sorted, func(s *models.Subscription) bool {
		return s.Status == types.SubscriptionStatusTrialing && s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
	}); ok {
		return trialing
	}

	return sorted[0]
}
