package dto

import "github.com/qhuy1504/smart-tro-server/internal/model"

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	PlanID        int64                   `json:"plan_id" binding:"required,min=1"`
	Duration      int                     `json:"duration,omitempty" binding:"omitempty,min=1"`
	DurationUnit  string                  `json:"duration_unit,omitempty" binding:"omitempty,oneof=day month year"`
	IsRenewal     bool                    `json:"is_renewal"`
	PaymentMethod string                  `json:"payment_method,omitempty" binding:"omitempty,oneof=bank_transfer vnpay"`
	Migration     *model.MigrationPayload `json:"migration,omitempty"`
}

// BankAccountInfo 收款账户信息
type BankAccountInfo struct {
	BankBIN       string `json:"bank_bin"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// PlanSummary 订单中的套餐摘要
type PlanSummary struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Duration     int    `json:"duration"`
	DurationUnit string `json:"duration_unit"`
}

// CreateOrderResponse 创建订单响应
type CreateOrderResponse struct {
	OrderID       string          `json:"order_id"`
	Amount        int64           `json:"amount"`
	PaymentStatus string          `json:"payment_status"`
	PaymentMethod string          `json:"payment_method"`
	Remark        string          `json:"remark"`
	QRPayload     string          `json:"qr_payload,omitempty"`
	QRURL         string          `json:"qr_url,omitempty"`
	PaymentURL    string          `json:"payment_url,omitempty"`
	BankAccount   BankAccountInfo `json:"bank_account"`
	Plan          PlanSummary     `json:"plan"`
	ExpiresAt     string          `json:"expires_at"`
}

// OrderItem 订单列表项
type OrderItem struct {
	ID             string `json:"id"`
	Total          int64  `json:"total"`
	PaymentStatus  string `json:"payment_status"`
	PaymentMethod  string `json:"payment_method"`
	PlanName       string `json:"plan_name"`
	IsRenewal      bool   `json:"is_renewal"`
	PaymentRemark  string `json:"payment_remark"`
	AmountReceived int64  `json:"amount_received"`
	PaidAt         string `json:"paid_at,omitempty"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	CreatedAt      string `json:"created_at"`
}
