package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/testutil"
)

func TestOrderRepository_CreateAssignsUUID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	user := testutil.TestUser(t, db)
	plan := testutil.TestPlan(t, db)
	order := testutil.TestOrder(t, db, user.ID, plan)

	assert.Len(t, order.ID, 36)
	assert.Equal(t, model.PaymentUnpaid, order.PaymentStatus)
	assert.Len(t, order.RemarkSuffix(), 6)
}

func TestOrderRepository_Settle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewOrderRepository(db)
	user := testutil.TestUser(t, db)
	plan := testutil.TestPlan(t, db)
	order := testutil.TestOrder(t, db, user.ID, plan)
	now := time.Now().UTC()

	// 金额不足
	ok, err := repo.Settle(ctx, order.ID, 499999, "ref-1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Settle(ctx, order.ID, 500000, "ref-2", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// 重复结算为空操作
	ok, err = repo.Settle(ctx, order.ID, 500000, "ref-3", now)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, found.PaymentStatus)
	assert.Equal(t, "ref-2", found.SettlementRef)
	assert.Equal(t, int64(500000), found.AmountReceived)
	assert.NotNil(t, found.PaidAt)
}

func TestOrderRepository_TerminalStates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewOrderRepository(db)
	user := testutil.TestUser(t, db)
	plan := testutil.TestPlan(t, db)
	now := time.Now().UTC()

	paid := testutil.TestOrder(t, db, user.ID, plan)
	ok, err := repo.Settle(ctx, paid.ID, plan.Price, "", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.CancelIfUnpaid(ctx, paid.ID, "manual", now)
	require.NoError(t, err)
	assert.False(t, ok, "cancel after pay")

	cancelled := testutil.TestOrder(t, db, user.ID, plan)
	ok, err = repo.CancelIfUnpaid(ctx, cancelled.ID, "manual", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Settle(ctx, cancelled.ID, plan.Price, "", now)
	require.NoError(t, err)
	assert.False(t, ok, "pay after cancel")

	found, err := repo.GetByID(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, found.PaymentStatus)
	assert.Equal(t, "manual", found.CancelReason)
}

func TestOrderRepository_ListUnpaidBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewOrderRepository(db)
	user := testutil.TestUser(t, db)
	plan := testutil.TestPlan(t, db)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	old := testutil.TestOrder(t, db, user.ID, plan, testutil.WithOrderCreatedAt(now.Add(-20*time.Minute)))
	testutil.TestOrder(t, db, user.ID, plan, testutil.WithOrderCreatedAt(now.Add(-5*time.Minute)))
	testutil.TestOrder(t, db, user.ID, plan,
		testutil.WithOrderCreatedAt(now.Add(-30*time.Minute)),
		testutil.WithOrderStatus(model.PaymentPaid))

	orders, err := repo.ListUnpaidBefore(ctx, now.Add(-15*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, old.ID, orders[0].ID)

	unpaid, err := repo.ListUnpaid(ctx)
	require.NoError(t, err)
	assert.Len(t, unpaid, 2)
}

func TestOrderRepository_ListByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewOrderRepository(db)
	user := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)
	plan := testutil.TestPlan(t, db)

	for i := 0; i < 3; i++ {
		testutil.TestOrder(t, db, user.ID, plan)
	}
	testutil.TestOrder(t, db, other.ID, plan)

	orders, total, err := repo.ListByUser(ctx, user.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, orders, 2)

	_, err = repo.GetByIDAndUser(ctx, orders[0].ID, other.ID)
	assert.Error(t, err)
}

func TestOrderRepository_MarkEntitlementApplied(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewOrderRepository(db)
	user := testutil.TestUser(t, db)
	plan := testutil.TestPlan(t, db)
	order := testutil.TestOrder(t, db, user.ID, plan, testutil.WithOrderStatus(model.PaymentPaid))

	pending, err := repo.ListPaidNotApplied(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	ok, err := repo.MarkEntitlementApplied(ctx, order.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkEntitlementApplied(ctx, order.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err = repo.ListPaidNotApplied(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOrderRepository_FindByRemarkSuffix(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewOrderRepository(db)
	user := testutil.TestUser(t, db)
	plan := testutil.TestPlan(t, db)
	order := testutil.TestOrder(t, db, user.ID, plan, testutil.WithOrderStatus(model.PaymentPaid))
	testutil.TestOrder(t, db, user.ID, plan)

	found, err := repo.FindByRemarkSuffix(ctx, order.RemarkSuffix())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, order.ID, found[0].ID)

	found, err = repo.FindByRemarkSuffix(ctx, "ZZZZZZ")
	require.NoError(t, err)
	assert.Empty(t, found)
}
