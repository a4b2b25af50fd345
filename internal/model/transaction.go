package model

import (
	"time"

	"gorm.io/datatypes"
)

type TransactionResult string

const (
	TxResultPending      TransactionResult = "pending"
	TxResultSettled      TransactionResult = "settled"
	TxResultUnmatched    TransactionResult = "unmatched"
	TxResultInsufficient TransactionResult = "insufficient"
	TxResultDuplicate    TransactionResult = "duplicate"
	TxResultFailed       TransactionResult = "failed"
	TxResultCancelled    TransactionResult = "cancelled"
	TxResultIgnored      TransactionResult = "ignored"
)

const (
	GatewayVNPay = "VNPAY"
)

// Transaction 每一条入账通知都记录，未匹配订单时同样保留
type Transaction struct {
	ID              int64             `gorm:"primaryKey" json:"id"`
	Gateway         string            `gorm:"size:50;index" json:"gateway"`
	TransactionDate *time.Time        `json:"transaction_date,omitempty"`
	AccountNumber   string            `gorm:"size:50" json:"account_number"`
	SubAccount      string            `gorm:"size:50" json:"sub_account"`
	Content         string            `gorm:"type:text" json:"content"`
	TransferType    string            `gorm:"size:10" json:"transfer_type"`
	AmountIn        int64             `gorm:"default:0" json:"amount_in"`
	AmountOut       int64             `gorm:"default:0" json:"amount_out"`
	Accumulated     int64             `gorm:"default:0" json:"accumulated"`
	Code            string            `gorm:"size:100" json:"code"`
	ReferenceCode   string            `gorm:"size:100;index" json:"reference_code"`
	ProviderID      string            `gorm:"size:100;index" json:"provider_id"`
	OrderID         *string           `gorm:"size:36;index" json:"order_id,omitempty"`
	Result          TransactionResult `gorm:"size:20;index" json:"result"`
	RawPayload      datatypes.JSON    `json:"raw_payload"`
	CreatedAt       time.Time         `json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
