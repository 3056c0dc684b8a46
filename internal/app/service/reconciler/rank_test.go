package reconciler

import (
	"testing"
	"time"

	models "github.com/finflow/reconciler/internal/models"
	types "github.com/finflow/reconciler/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBest_AllCases(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * 24 * time.Hour)
	past := now.Add(-10 * 24 * time.Hour)

	tests := []struct {
		name string
		rows []*models.Subscription
		want string // expected row ID, "" for nil
	}{
		{name: "empty input", rows: nil, want: ""},
		{
			name: "single active row",
			rows: []*models.Subscription{
				{ID: "1", Status: types.SubscriptionStatusActive, CurrentPeriodEnd: future, UpdatedAt: now},
			},
			want: "1",
		},
		{
			name: "active beats trialing",
			rows: []*models.Subscription{
				{ID: "trial", Status: types.SubscriptionStatusTrialing, TrialEndsAt: &future, UpdatedAt: now},
				{ID: "paid", Status: types.SubscriptionStatusActive, CurrentPeriodEnd: future, UpdatedAt: now.Add(-time.Hour)},
			},
			want: "paid",
		},
		{
			name: "expired active loses to live trial",
			rows: []*models.Subscription{
				{ID: "stale", Status: types.SubscriptionStatusActive, CurrentPeriodEnd: past, UpdatedAt: now},
				{ID: "trial", Status: types.SubscriptionStatusTrialing, TrialEndsAt: &future, UpdatedAt: now.Add(-time.Hour)},
			},
			want: "trial",
		},
		{
			name: "trialing without trial end never wins on priority",
			rows: []*models.Subscription{
				{ID: "broken-trial", Status: types.SubscriptionStatusTrialing, UpdatedAt: now.Add(-time.Hour)},
				{ID: "paid", Status: types.SubscriptionStatusActive, CurrentPeriodEnd: future, UpdatedAt: now.Add(-2 * time.Hour)},
			},
			want: "paid",
		},
		{
			name: "all dead falls back to most recently updated",
			rows: []*models.Subscription{
				{ID: "old", Status: types.SubscriptionStatusCanceled, UpdatedAt: now.Add(-48 * time.Hour)},
				{ID: "newer", Status: types.SubscriptionStatusCanceled, UpdatedAt: now.Add(-time.Hour)},
				{ID: "expired-trial", Status: types.SubscriptionStatusTrialing, TrialEndsAt: &past, UpdatedAt: now.Add(-24 * time.Hour)},
			},
			want: "newer",
		},
		{
			name: "two live active rows, most recent wins",
			rows: []*models.Subscription{
				{ID: "older-active", Status: types.SubscriptionStatusActive, CurrentPeriodEnd: future, UpdatedAt: now.Add(-time.Hour)},
				{ID: "newer-active", Status: types.SubscriptionStatusActive, CurrentPeriodEnd: future, UpdatedAt: now},
			},
			want: "newer-active",
		},
		{
			name: "past due falls through to fallback",
			rows: []*models.Subscription{
				{ID: "due", Status: types.SubscriptionStatusPastDue, CurrentPeriodEnd: future, UpdatedAt: now},
			},
			want: "due",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Best(tc.rows, now)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.ID)
		})
	}
}

func TestBest_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	rows := []*models.Subscription{
		{ID: "a", Status: types.SubscriptionStatusCanceled, UpdatedAt: now.Add(-time.Hour)},
		{ID: "b", Status: types.SubscriptionStatusCanceled, UpdatedAt: now},
	}

	got := Best(rows, now)
	require.NotNil(t, got)
	require.Equal(t, "b", got.ID)
	// input order untouched
	require.Equal(t, "a", rows[0].ID)
	require.Equal(t, "b", rows[1].ID)
}
