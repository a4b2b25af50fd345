package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/testutil"
)

func TestTransactionRepository_CreateAndSetResult(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	ctx := context.Background()
	repo := NewTransactionRepository(db)

	tx := &model.Transaction{Gateway: "MBBank", Content: "garbage", AmountIn: 10000}
	require.NoError(t, repo.Create(ctx, tx))
	assert.NotZero(t, tx.ID)
	assert.Equal(t, model.TxResultPending, tx.Result)

	orderID := "11111111-2222-3333-4444-555555abcdef"
	require.NoError(t, repo.SetResult(ctx, tx.ID, &orderID, model.TxResultInsufficient))

	found, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxResultInsufficient, found.Result)
	require.NotNil(t, found.OrderID)
	assert.Equal(t, orderID, *found.OrderID)
	assert.JSONEq(t, "{}", string(found.RawPayload))

	byOrder, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, byOrder, 1)
}
