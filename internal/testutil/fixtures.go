package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	email := fmt.Sprintf("test_%d@example.com", n)
	user := &model.User{
		Username: fmt.Sprintf("testuser_%d", n),
		Email:    &email,
		Role:     model.RoleTenant,
	}
	user.SetEntitlements(model.Entitlements{}, time.Now().UTC())

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithRole 设置角色
func WithRole(role model.Role) func(*model.User) {
	return func(u *model.User) {
		u.Role = role
	}
}

// WithEntitlements 设置套餐快照
func WithEntitlements(s model.Entitlements, now time.Time) func(*model.User) {
	return func(u *model.User) {
		u.SetEntitlements(s, now)
	}
}

// TestPlan 创建测试套餐，默认 Premium 500000 VND/月
func TestPlan(t *testing.T, db *gorm.DB, opts ...func(*model.PackagePlan)) *model.PackagePlan {
	t.Helper()

	plan := &model.PackagePlan{
		Name:           fmt.Sprintf("Premium %d", nextSeq()),
		Kind:           model.PlanKindPremium,
		Price:          500000,
		Duration:       1,
		DurationUnit:   model.DurationMonth,
		FreePushCount:  5,
		GrantsLandlord: true,
		IsActive:       true,
		Quotas: datatypes.NewJSONType([]model.PlanQuota{
			{ListingType: "vip", Limit: 3},
			{ListingType: "normal", Limit: 10},
		}),
	}

	for _, opt := range opts {
		opt(plan)
	}

	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("Failed to create test plan: %v", err)
	}

	return plan
}

// WithPlanName 设置套餐名
func WithPlanName(name string) func(*model.PackagePlan) {
	return func(p *model.PackagePlan) {
		p.Name = name
	}
}

// WithPlanKind 设置套餐类型与价格
func WithPlanKind(kind model.PlanKind, price int64) func(*model.PackagePlan) {
	return func(p *model.PackagePlan) {
		p.Kind = kind
		p.Price = price
	}
}

// WithPlanDuration 设置时长
func WithPlanDuration(duration int, unit model.DurationUnit) func(*model.PackagePlan) {
	return func(p *model.PackagePlan) {
		p.Duration = duration
		p.DurationUnit = unit
	}
}

// WithPlanQuotas 设置配额表
func WithPlanQuotas(quotas ...model.PlanQuota) func(*model.PackagePlan) {
	return func(p *model.PackagePlan) {
		p.Quotas = datatypes.NewJSONType(quotas)
	}
}

// WithLandlordGrant 设置是否授予房东权限
func WithLandlordGrant(grants bool) func(*model.PackagePlan) {
	return func(p *model.PackagePlan) {
		p.GrantsLandlord = grants
	}
}

// WithPlanInactive 下架
func WithPlanInactive() func(*model.PackagePlan) {
	return func(p *model.PackagePlan) {
		p.IsActive = false
	}
}

// TestOrder 创建待支付订单
func TestOrder(t *testing.T, db *gorm.DB, userID int64, plan *model.PackagePlan, opts ...func(*model.Order)) *model.Order {
	t.Helper()

	planID := plan.ID
	order := &model.Order{
		UserID:        userID,
		Total:         plan.Price,
		PaymentStatus: model.PaymentUnpaid,
		PaymentMethod: model.PaymentMethodBankTransfer,
		PlanID:        &planID,
		PlanName:      plan.Name,
		Duration:      plan.Duration,
		DurationUnit:  plan.DurationUnit,
	}

	for _, opt := range opts {
		opt(order)
	}

	if err := db.Create(order).Error; err != nil {
		t.Fatalf("Failed to create test order: %v", err)
	}
	if order.PaymentRemark == "" {
		order.PaymentRemark = "SMARTTRO DH" + order.RemarkSuffix()
		db.Model(order).Update("payment_remark", order.PaymentRemark)
	}

	return order
}

// WithOrderCreatedAt 设置创建时间
func WithOrderCreatedAt(at time.Time) func(*model.Order) {
	return func(o *model.Order) {
		o.CreatedAt = at
	}
}

// WithRenewal 标记为续费
func WithRenewal() func(*model.Order) {
	return func(o *model.Order) {
		o.IsRenewal = true
	}
}

// WithMigration 设置迁移房源
func WithMigration(payload *model.MigrationPayload) func(*model.Order) {
	return func(o *model.Order) {
		o.Migration = datatypes.NewJSONType(payload)
	}
}

// WithOrderStatus 设置支付状态
func WithOrderStatus(status model.PaymentStatus) func(*model.Order) {
	return func(o *model.Order) {
		o.PaymentStatus = status
	}
}

// TestListing 创建房源
func TestListing(t *testing.T, db *gorm.DB, ownerID int64, opts ...func(*model.Listing)) *model.Listing {
	t.Helper()

	listing := &model.Listing{
		OwnerID:       ownerID,
		Title:         fmt.Sprintf("Phòng trọ %d", nextSeq()),
		ListingType:   "normal",
		PackageStatus: model.ListingPackageInactive,
	}

	for _, opt := range opts {
		opt(listing)
	}

	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("Failed to create test listing: %v", err)
	}

	return listing
}

// BoundTo 绑定到套餐实例并激活
func BoundTo(inst model.EntitlementInstance, listingType string) func(*model.Listing) {
	return func(l *model.Listing) {
		l.PackageInstanceID = inst.InstanceID
		l.ListingType = listingType
		l.PackageActive = true
		l.PackageStatus = model.ListingPackageActive
		if inst.ExpiryDate != nil {
			exp := *inst.ExpiryDate
			l.PackageExpiry = &exp
		}
	}
}
