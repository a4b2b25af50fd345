package dto

// QuotaItem 某一房源类型的配额
type QuotaItem struct {
	ListingType string `json:"listing_type"`
	Limit       int    `json:"limit"`
	Used        int    `json:"used"`
	Remaining   int    `json:"remaining"`
}

// QuotaInfo 用户当前套餐与配额
type QuotaInfo struct {
	HasPackage    bool        `json:"has_package"`
	Role          string      `json:"role"`
	InstanceID    string      `json:"instance_id,omitempty"`
	PlanName      string      `json:"plan_name,omitempty"`
	Status        string      `json:"status,omitempty"`
	ExpiryDate    string      `json:"expiry_date,omitempty"`
	FreePushCount int         `json:"free_push_count"`
	Quotas        []QuotaItem `json:"quotas"`
}

// QuoteResponse 按天报价
type QuoteResponse struct {
	ListingTypeID   int64  `json:"listing_type_id"`
	Code            string `json:"code"`
	Days            int    `json:"days"`
	PricePerDay     int64  `json:"price_per_day"`
	DiscountPercent int    `json:"discount_percent"`
	Subtotal        int64  `json:"subtotal"`
	Discount        int64  `json:"discount"`
	Total           int64  `json:"total"`
}

// ReserveQuotaRequest 发布房源前占用配额
type ReserveQuotaRequest struct {
	ListingID   int64  `json:"listing_id" binding:"required,min=1"`
	ListingType string `json:"listing_type" binding:"required"`
}

// ReleaseQuotaRequest 删除房源后释放配额
type ReleaseQuotaRequest struct {
	ListingID int64 `json:"listing_id" binding:"required,min=1"`
}
