package reconciler

import (
	"context"
	"testing"
	"time"

	models "github.com/finflow/reconciler/internal/models"
	"github.com/finflow/reconciler/pkg/config"
	"github.com/finflow/reconciler/pkg/tool"
	types "github.com/finflow/reconciler/pkg/types"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// a single in-memory sqlite database per connection; pin the pool to one
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Subscription{},
		&models.SubscriptionLog{},
		&models.Account{},
	))
	return NewService(&config.Config{}, db, zap.NewNop().Sugar())
}

func seedRow(t *testing.T, svc *Service, row *models.Subscription) *models.Subscription {
	t.Helper()
	if row.ID == "" {
		row.ID = tool.GenerateUUIDV7()
	}
	require.NoError(t, svc.db.Create(row).Error)
	return row
}

func liveRows(t *testing.T, svc *Service, userID string) []*models.Subscription {
	t.Helper()
	var rows []*models.Subscription
	require.NoError(t, svc.db.
		Where("user_id = ?", userID).
		Where("status <> ?", types.SubscriptionStatusCanceled).
		Find(&rows).Error)
	return rows
}

func TestUpsert_CreatesRow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	row, err := svc.Upsert(ctx, SubscriptionData{
		UserID:             "user-1",
		Plan:               types.PlanGold,
		BillingCycle:       types.BillingCycleMonthly,
		Status:             types.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	require.NotEmpty(t, row.ID)
	assert.Equal(t, types.PlanGold, row.Plan)
	assert.Equal(t, types.SubscriptionStatusActive, row.Status)

	got, err := svc.GetCurrentSubscription(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, row.ID, got.ID)
}

func TestUpsert_RejectsInvalidEnums(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	base := SubscriptionData{
		UserID:             "user-1",
		Plan:               types.PlanGold,
		BillingCycle:       types.BillingCycleMonthly,
		Status:             types.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}

	bad := base
	bad.Plan = "PLATINUM"
	_, err := svc.Upsert(ctx, bad)
	require.Error(t, err)

	bad = base
	bad.BillingCycle = "WEEKLY"
	_, err = svc.Upsert(ctx, bad)
	require.Error(t, err)

	bad = base
	bad.Status = "EXPIRED"
	_, err = svc.Upsert(ctx, bad)
	require.Error(t, err)
}

func TestUpsert_IdempotentByStripeSubscriptionID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()
	subID := "sub_123"

	data := SubscriptionData{
		UserID:               "user-1",
		Plan:                 types.PlanSilver,
		BillingCycle:         types.BillingCycleMonthly,
		Status:               types.SubscriptionStatusActive,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     now.AddDate(0, 1, 0),
		StripeSubscriptionID: &subID,
	}

	first, err := svc.Upsert(ctx, data)
	require.NoError(t, err)

	// webhook redelivery with a newer period
	data.CurrentPeriodStart = now.AddDate(0, 1, 0)
	data.CurrentPeriodEnd = now.AddDate(0, 2, 0)
	second, err := svc.Upsert(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, svc.db.Model(&models.Subscription{}).
		Where("user_id = ?", "user-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsert_RetiresOtherRows(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	seedRow(t, svc, &models.Subscription{
		UserID: "user-1", Plan: types.PlanSilver, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusTrialing, CurrentPeriodStart: now.AddDate(0, 0, -7),
		CurrentPeriodEnd: now.AddDate(0, 0, 7), TrialEndsAt: ptrTime(now.AddDate(0, 0, 7)),
		UpdatedAt: now.Add(-time.Hour),
	})
	seedRow(t, svc, &models.Subscription{
		UserID: "user-1", Plan: types.PlanSilver, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusActive, CurrentPeriodStart: now.AddDate(0, -2, 0),
		CurrentPeriodEnd: now.AddDate(0, -1, 0), UpdatedAt: now.Add(-2 * time.Hour),
	})

	subID := "sub_new"
	kept, err := svc.Upsert(ctx, SubscriptionData{
		UserID:               "user-1",
		Plan:                 types.PlanGold,
		BillingCycle:         types.BillingCycleAnnual,
		Status:               types.SubscriptionStatusActive,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     now.AddDate(1, 0, 0),
		StripeSubscriptionID: &subID,
	})
	require.NoError(t, err)

	live := liveRows(t, svc, "user-1")
	require.Len(t, live, 1)
	assert.Equal(t, kept.ID, live[0].ID)

	// retired rows carry the cancellation flag
	var retired []*models.Subscription
	require.NoError(t, svc.db.
		Where("user_id = ? AND id <> ?", "user-1", kept.ID).
		Find(&retired).Error)
	require.Len(t, retired, 2)
	for _, r := range retired {
		assert.Equal(t, types.SubscriptionStatusCanceled, r.Status)
		assert.True(t, r.CancelAtPeriodEnd)
	}
}

func TestStartTrial(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	row, err := svc.StartTrial(ctx, "user-1", types.PlanSilver, 14)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusTrialing, row.Status)
	assert.Equal(t, types.PlanSilver, row.Plan)
	assert.Equal(t, types.BillingCycleMonthly, row.BillingCycle)
	require.NotNil(t, row.TrialEndsAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), *row.TrialEndsAt, time.Minute)
	assert.True(t, row.TrialEndsAt.Equal(row.CurrentPeriodEnd))

	// starting again collapses to a single live trial row
	again, err := svc.StartTrial(ctx, "user-1", types.PlanSilver, 14)
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)
	require.Len(t, liveRows(t, svc, "user-1"), 1)
}

func TestUpgradeFromTrial(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	trial, err := svc.StartTrial(ctx, "user-1", types.PlanSilver, 14)
	require.NoError(t, err)

	paid, err := svc.UpgradeFromTrial(ctx, "user-1", types.PlanGold, types.BillingCycleAnnual,
		"sub_abc", "cus_abc", now, now.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, trial.ID, paid.ID, "upgrade reuses the trial row")
	assert.Equal(t, types.SubscriptionStatusActive, paid.Status)
	assert.Equal(t, types.PlanGold, paid.Plan)
	assert.Nil(t, paid.TrialEndsAt, "trial marker cleared on upgrade")
	require.NotNil(t, paid.StripeSubscriptionID)
	assert.Equal(t, "sub_abc", *paid.StripeSubscriptionID)

	require.Len(t, liveRows(t, svc, "user-1"), 1)
}

func TestChangePlan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.UpgradeFromTrial(ctx, "user-1", types.PlanSilver, types.BillingCycleMonthly,
		"sub_abc", "cus_abc", now, now.AddDate(0, 1, 0))
	require.NoError(t, err)

	changed, err := svc.ChangePlan(ctx, "user-1", types.PlanGold, types.BillingCycleAnnual,
		"sub_abc", "cus_abc", now, now.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, types.PlanGold, changed.Plan)
	assert.Equal(t, types.BillingCycleAnnual, changed.BillingCycle)
	require.Len(t, liveRows(t, svc, "user-1"), 1)
}

func TestCancel_NoRows(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Cancel(context.Background(), "nobody", false)
	require.ErrorIs(t, err, ErrNoSubscription)
}

func TestCancel_AtPeriodEnd(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.UpgradeFromTrial(ctx, "user-1", types.PlanGold, types.BillingCycleMonthly,
		"sub_abc", "cus_abc", now, now.AddDate(0, 1, 0))
	require.NoError(t, err)

	row, err := svc.Cancel(ctx, "user-1", false)
	require.NoError(t, err)
	assert.True(t, row.CancelAtPeriodEnd)
	// access continues until the period lapses
	assert.Equal(t, types.SubscriptionStatusActive, row.Status)
	assert.True(t, row.Live(now))
}

func TestCancel_Immediately(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.UpgradeFromTrial(ctx, "user-1", types.PlanGold, types.BillingCycleMonthly,
		"sub_abc", "cus_abc", now, now.AddDate(0, 1, 0))
	require.NoError(t, err)

	row, err := svc.Cancel(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCanceled, row.Status)
	assert.True(t, row.CancelAtPeriodEnd)
	assert.False(t, row.Live(now))
}

func TestHandleStatusChange_UnknownID(t *testing.T) {
	svc := newTestService(t)

	row, err := svc.HandleStatusChange(context.Background(), "sub_never_seen", types.StripeStatusCanceled)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestHandleStatusChange_AppliesStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.UpgradeFromTrial(ctx, "user-1", types.PlanGold, types.BillingCycleMonthly,
		"sub_abc", "cus_abc", now, now.AddDate(0, 1, 0))
	require.NoError(t, err)

	row, err := svc.HandleStatusChange(ctx, "sub_abc", types.StripeStatusPastDue)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, types.SubscriptionStatusPastDue, row.Status)

	got, err := svc.GetCurrentSubscription(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusPastDue, got.Status)
}

func TestHandleStatusChange_UnknownVocabularyKeepsAccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.UpgradeFromTrial(ctx, "user-1", types.PlanGold, types.BillingCycleMonthly,
		"sub_abc", "cus_abc", now, now.AddDate(0, 1, 0))
	require.NoError(t, err)

	row, err := svc.HandleStatusChange(ctx, "sub_abc", types.ParseStripeStatus("some_future_status"))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, types.SubscriptionStatusActive, row.Status)
}

func TestCleanupDuplicateSubscriptions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	// user-1 drifted into three rows, one of them live
	winner := seedRow(t, svc, &models.Subscription{
		UserID: "user-1", Plan: types.PlanGold, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusActive, CurrentPeriodStart: now,
		CurrentPeriodEnd: now.AddDate(0, 1, 0), UpdatedAt: now.Add(-time.Hour),
	})
	seedRow(t, svc, &models.Subscription{
		UserID: "user-1", Plan: types.PlanSilver, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusTrialing, CurrentPeriodStart: now.AddDate(0, 0, -20),
		CurrentPeriodEnd: now.AddDate(0, 0, -6), TrialEndsAt: ptrTime(now.AddDate(0, 0, -6)),
		UpdatedAt: now,
	})
	seedRow(t, svc, &models.Subscription{
		UserID: "user-1", Plan: types.PlanSilver, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusActive, CurrentPeriodStart: now.AddDate(0, -3, 0),
		CurrentPeriodEnd: now.AddDate(0, -2, 0), UpdatedAt: now.Add(-48 * time.Hour),
	})
	// user-2 is healthy and must not be touched
	healthy := seedRow(t, svc, &models.Subscription{
		UserID: "user-2", Plan: types.PlanSilver, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusActive, CurrentPeriodStart: now,
		CurrentPeriodEnd: now.AddDate(0, 1, 0), UpdatedAt: now,
	})

	repaired, err := svc.CleanupDuplicateSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	live := liveRows(t, svc, "user-1")
	require.Len(t, live, 1)
	assert.Equal(t, winner.ID, live[0].ID)

	got, err := svc.GetCurrentSubscription(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, healthy.ID, got.ID)
	assert.Equal(t, types.SubscriptionStatusActive, got.Status)
}

func TestGetCurrentSubscription_NoRows(t *testing.T) {
	svc := newTestService(t)

	got, err := svc.GetCurrentSubscription(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserForStripeIDs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.UpgradeFromTrial(ctx, "user-1", types.PlanGold, types.BillingCycleMonthly,
		"sub_abc", "cus_abc", now, now.AddDate(0, 1, 0))
	require.NoError(t, err)

	userID, err := svc.UserForStripeIDs(ctx, "sub_abc", "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	userID, err = svc.UserForStripeIDs(ctx, "", "cus_abc")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	// subscription ID wins over a customer ID pointing elsewhere
	_, err = svc.UpgradeFromTrial(ctx, "user-2", types.PlanGold, types.BillingCycleMonthly,
		"sub_def", "cus_def", now, now.AddDate(0, 1, 0))
	require.NoError(t, err)
	userID, err = svc.UserForStripeIDs(ctx, "sub_abc", "cus_def")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	userID, err = svc.UserForStripeIDs(ctx, "sub_missing", "cus_missing")
	require.NoError(t, err)
	assert.Equal(t, "", userID)
}

func TestUpsert_LinksAccountWhenPresent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	acct := &models.Account{ID: tool.GenerateUUIDV7(), UserID: "user-1", Provider: "google"}
	require.NoError(t, svc.db.Create(acct).Error)

	row, err := svc.Upsert(ctx, SubscriptionData{
		UserID:             "user-1",
		Plan:               types.PlanGold,
		BillingCycle:       types.BillingCycleMonthly,
		Status:             types.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	require.NotNil(t, row.AccountID)
	assert.Equal(t, acct.ID, *row.AccountID)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
