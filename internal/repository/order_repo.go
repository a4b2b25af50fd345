package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetByIDAndUser(ctx context.Context, id string, userID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Updates(fields).Error
}

// ListByUser 分页查询用户订单，按创建时间倒序
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&orders).Error
	return orders, total, err
}

// ListUnpaid 所有待支付订单，供备注后缀扫描匹配
func (r *OrderRepository) ListUnpaid(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).Where("payment_status = ?", model.PaymentUnpaid).
		Order("created_at DESC").Find(&orders).Error
	return orders, err
}

// FindByRemarkSuffix 按备注后缀查找任意状态的订单，用于识别重复或迟到的转账
func (r *OrderRepository) FindByRemarkSuffix(ctx context.Context, suffix string) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).Where("payment_remark LIKE ?", "%DH"+suffix).
		Order("created_at DESC").Find(&orders).Error
	return orders, err
}

// ListUnpaidBefore 创建时间早于 cutoff 的待支付订单
func (r *OrderRepository) ListUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	var orders []model.Order
	query := r.db.WithContext(ctx).
		Where("payment_status = ? AND created_at < ?", model.PaymentUnpaid, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&orders).Error
	return orders, err
}

// Settle 单条条件更新：仅当订单仍为 unpaid 且金额足够时置为 paid
func (r *OrderRepository) Settle(ctx context.Context, id string, amount int64, ref string, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payment_status = ? AND total <= ?", id, model.PaymentUnpaid, amount).
		Updates(map[string]interface{}{
			"payment_status":  model.PaymentPaid,
			"amount_received": amount,
			"settlement_ref":  ref,
			"paid_at":         paidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CancelIfUnpaid 单条条件更新：仅当订单仍为 unpaid 时置为 cancelled
func (r *OrderRepository) CancelIfUnpaid(ctx context.Context, id, reason string, cancelledAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payment_status = ?", id, model.PaymentUnpaid).
		Updates(map[string]interface{}{
			"payment_status": model.PaymentCancelled,
			"cancel_reason":  reason,
			"cancelled_at":   cancelledAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkEntitlementApplied 只记录第一次
func (r *OrderRepository) MarkEntitlementApplied(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND entitlement_applied_at IS NULL", id).
		Update("entitlement_applied_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListPaidNotApplied 已支付但套餐未生效的订单，用于补偿
func (r *OrderRepository) ListPaidNotApplied(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order
	query := r.db.WithContext(ctx).
		Where("payment_status = ? AND entitlement_applied_at IS NULL", model.PaymentPaid).
		Order("paid_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&orders).Error
	return orders, err
}
