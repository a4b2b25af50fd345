package model

import (
	"time"

	"gorm.io/gorm"
)

type ListingPackageStatus string

const (
	ListingPackageActive   ListingPackageStatus = "active"
	ListingPackageExpired  ListingPackageStatus = "expired"
	ListingPackageInactive ListingPackageStatus = "inactive"
)

// Listing 房源表由房源服务维护，这里只读写套餐绑定相关列
type Listing struct {
	ID                int64                `gorm:"primaryKey" json:"id"`
	OwnerID           int64                `gorm:"not null;index" json:"owner_id"`
	Title             string               `gorm:"size:200" json:"title"`
	ListingType       string               `gorm:"size:50;index" json:"listing_type"`
	PackageInstanceID string               `gorm:"size:36;index" json:"package_instance_id"`
	PackageActive     bool                 `gorm:"default:false;index" json:"package_active"`
	PackageExpiry     *time.Time           `json:"package_expiry,omitempty"`
	PackageStatus     ListingPackageStatus `gorm:"size:20;default:inactive" json:"package_status"`
	AutoUpgrade       bool                 `gorm:"default:false" json:"auto_upgrade"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	DeletedAt         gorm.DeletedAt       `gorm:"index" json:"-"`
}

func (Listing) TableName() string {
	return "listings"
}
