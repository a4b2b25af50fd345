package model

import (
	"time"

	"gorm.io/datatypes"
)

type PlanKind string

const (
	PlanKindTrial   PlanKind = "trial"
	PlanKindBasic   PlanKind = "basic"
	PlanKindVIP     PlanKind = "vip"
	PlanKindPremium PlanKind = "premium"
	PlanKindCustom  PlanKind = "custom"
)

type DurationUnit string

const (
	DurationDay   DurationUnit = "day"
	DurationMonth DurationUnit = "month"
	DurationYear  DurationUnit = "year"
)

// PlanQuota 套餐中某一房源类型可发布的数量
type PlanQuota struct {
	ListingType string `json:"listing_type"`
	Limit       int    `json:"limit"`
}

type PackagePlan struct {
	ID             int64                           `gorm:"primaryKey" json:"id"`
	Name           string                          `gorm:"size:100;not null" json:"name"`
	Kind           PlanKind                        `gorm:"size:20;not null;index" json:"kind"`
	Description    string                          `gorm:"type:text" json:"description"`
	Price          int64                           `gorm:"not null" json:"price"`
	Duration       int                             `gorm:"default:0" json:"duration"`
	DurationUnit   DurationUnit                    `gorm:"size:10" json:"duration_unit"`
	FreePushCount  int                             `gorm:"default:0" json:"free_push_count"`
	Quotas         datatypes.JSONType[[]PlanQuota] `json:"quotas"`
	GrantsLandlord bool                            `gorm:"default:false" json:"grants_landlord"`
	IsActive       bool                            `gorm:"index" json:"is_active"`
	SortOrder      int                             `gorm:"default:0" json:"sort_order"`
	CreatedAt      time.Time                       `json:"created_at"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

func (PackagePlan) TableName() string {
	return "package_plans"
}

// QuotaList 返回按套餐定义顺序排列的配额
func (p *PackagePlan) QuotaList() []PlanQuota {
	quotas := p.Quotas.Data()
	out := make([]PlanQuota, len(quotas))
	copy(out, quotas)
	return out
}

// AddDuration 按给定时长计算到期时间
func AddDuration(from time.Time, duration int, unit DurationUnit) time.Time {
	switch unit {
	case DurationYear:
		return from.AddDate(duration, 0, 0)
	case DurationMonth:
		return from.AddDate(0, duration, 0)
	default:
		return from.AddDate(0, 0, duration)
	}
}

// PricingTier 按天计价的阶梯，天数 >= MinDays 时生效
type PricingTier struct {
	MinDays         int   `json:"min_days"`
	PricePerDay     int64 `json:"price_per_day"`
	DiscountPercent int   `json:"discount_percent"`
}

// ListingType 房源展示类型（普通、VIP 等），仅用于报价
type ListingType struct {
	ID        int64                             `gorm:"primaryKey" json:"id"`
	Code      string                            `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name      string                            `gorm:"size:100;not null" json:"name"`
	Color     string                            `gorm:"size:20" json:"color"`
	Priority  int                               `gorm:"default:0" json:"priority"`
	Tiers     datatypes.JSONType[[]PricingTier] `json:"tiers"`
	IsActive  bool                              `json:"is_active"`
	CreatedAt time.Time                         `json:"created_at"`
	UpdatedAt time.Time                         `json:"updated_at"`
}

func (ListingType) TableName() string {
	return "listing_types"
}
