package model

import (
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID                 int64                                     `gorm:"primaryKey" json:"id"`
	Username           string                                    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email              *string                                   `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	FullName           string                                    `gorm:"size:100" json:"full_name"`
	Role               Role                                      `gorm:"size:20;default:tenant;index" json:"role"`
	CurrentPackagePlan datatypes.JSONType[*EntitlementInstance]  `json:"current_package_plan"`
	PackageHistory     datatypes.JSONType[[]EntitlementInstance] `json:"package_history"`
	HasPackage         bool                                      `gorm:"default:false;index" json:"has_package"`
	NextPackageExpiry  *time.Time                                `gorm:"index" json:"next_package_expiry,omitempty"`
	EntitlementVersion int64                                     `gorm:"default:0" json:"-"`
	CreatedAt          time.Time                                 `json:"created_at"`
	UpdatedAt          time.Time                                 `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Entitlements 读取套餐快照（返回副本）
func (u *User) Entitlements() Entitlements {
	s := Entitlements{
		Current: u.CurrentPackagePlan.Data(),
		History: u.PackageHistory.Data(),
	}
	return s.Clone()
}

// SetEntitlements 写回快照并刷新冗余列
func (u *User) SetEntitlements(s Entitlements, now time.Time) {
	u.CurrentPackagePlan = datatypes.NewJSONType(s.Current)
	history := s.History
	if history == nil {
		history = []EntitlementInstance{}
	}
	u.PackageHistory = datatypes.NewJSONType(history)
	u.HasPackage = s.HasPackage(now)
	u.NextPackageExpiry = s.NextExpiry()
}
