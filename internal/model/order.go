package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodVNPay        PaymentMethod = "vnpay"
)

// MigrationSelection 买家希望迁移到新套餐的房源
type MigrationSelection struct {
	PropertyID  int64  `json:"property_id"`
	ListingType string `json:"listing_type"`
}

type MigrationPayload struct {
	SelectedProperties []MigrationSelection `json:"selected_properties"`
	LimitsUsage        map[string]int       `json:"limits_usage,omitempty"`
}

type Order struct {
	ID                   string                                `gorm:"primaryKey;size:36" json:"id"`
	UserID               int64                                 `gorm:"not null;index" json:"user_id"`
	Total                int64                                 `gorm:"not null" json:"total"`
	PaymentStatus        PaymentStatus                         `gorm:"size:20;default:unpaid;index" json:"payment_status"`
	PaymentMethod        PaymentMethod                         `gorm:"size:20" json:"payment_method"`
	PlanID               *int64                                `gorm:"index" json:"plan_id,omitempty"`
	PlanName             string                                `gorm:"size:100" json:"plan_name"`
	Duration             int                                   `json:"duration"`
	DurationUnit         DurationUnit                          `gorm:"size:10" json:"duration_unit"`
	IsRenewal            bool                                  `gorm:"default:false" json:"is_renewal"`
	Migration            datatypes.JSONType[*MigrationPayload] `json:"migration,omitempty"`
	PaymentRemark        string                                `gorm:"size:64;index" json:"payment_remark"`
	SettlementRef        string                                `gorm:"size:100" json:"settlement_ref,omitempty"`
	AmountReceived       int64                                 `gorm:"default:0" json:"amount_received"`
	PaidAt               *time.Time                            `json:"paid_at,omitempty"`
	CancelledAt          *time.Time                            `json:"cancelled_at,omitempty"`
	CancelReason         string                                `gorm:"size:100" json:"cancel_reason,omitempty"`
	EntitlementAppliedAt *time.Time                            `json:"entitlement_applied_at,omitempty"`
	CreatedAt            time.Time                             `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time                             `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// RemarkSuffix 订单号去掉分隔符后的最后 6 位（大写）
func (o *Order) RemarkSuffix() string {
	return OrderSuffix(o.ID)
}

func OrderSuffix(id string) string {
	hex := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(hex) <= 6 {
		return hex
	}
	return hex[len(hex)-6:]
}

func (o *Order) IsUnpaid() bool {
	return o.PaymentStatus == PaymentUnpaid
}

func (o *Order) MigrationPayload() *MigrationPayload {
	return o.Migration.Data()
}
