package dto

// BankWebhookPayload 银行到账通知（SePay 格式）
type BankWebhookPayload struct {
	ID              int64  `json:"id"`
	Gateway         string `json:"gateway"`
	TransactionDate string `json:"transactionDate"`
	AccountNumber   string `json:"accountNumber"`
	SubAccount      string `json:"subAccount"`
	Code            string `json:"code"`
	Content         string `json:"content"`
	TransferType    string `json:"transferType"`
	Description     string `json:"description"`
	TransferAmount  int64  `json:"transferAmount"`
	Accumulated     int64  `json:"accumulated"`
	ReferenceCode   string `json:"referenceCode"`
}

// WebhookResult 返回给银行的确认，始终 success
type WebhookResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
}

// VNPayReturnResult 网关回跳处理结果
type VNPayReturnResult struct {
	OrderID      string `json:"order_id"`
	ResponseCode string `json:"response_code"`
	Status       string `json:"status"`
	Settled      bool   `json:"settled"`
}
