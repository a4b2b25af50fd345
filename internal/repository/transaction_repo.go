package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create 只追加，原始报文为空时写入 {}
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	if len(tx.RawPayload) == 0 {
		tx.RawPayload = []byte("{}")
	}
	if tx.Result == "" {
		tx.Result = model.TxResultPending
	}
	return r.db.WithContext(ctx).Create(tx).Error
}

// SetResult 记录处理结果，只更新 result 与 order_id
func (r *TransactionRepository) SetResult(ctx context.Context, id int64, orderID *string, result model.TransactionResult) error {
	return r.db.WithContext(ctx).Model(&model.Transaction{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"order_id": orderID,
			"result":   result,
		}).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var tx model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).
		Order("id ASC").Find(&txs).Error
	return txs, err
}

func (r *TransactionRepository) ListByResult(ctx context.Context, result model.TransactionResult) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).Where("result = ?", result).
		Order("id ASC").Find(&txs).Error
	return txs, err
}
