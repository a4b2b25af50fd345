package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/model/dto"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

type CatalogService struct {
	planRepo *repository.PlanRepository
	logger   *slog.Logger
}

func NewCatalogService(planRepo *repository.PlanRepository, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{planRepo: planRepo, logger: logger}
}

// ListPlans 在售套餐
func (s *CatalogService) ListPlans(ctx context.Context) ([]model.PackagePlan, error) {
	return s.planRepo.ListActive(ctx)
}

// GetPlan 获取套餐，不区分是否在售
func (s *CatalogService) GetPlan(ctx context.Context, id int64) (*model.PackagePlan, error) {
	plan, err := s.planRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

func (s *CatalogService) ListListingTypes(ctx context.Context) ([]model.ListingType, error) {
	return s.planRepo.ListListingTypes(ctx)
}

// QuoteListing 按天数选出适用的最高阶梯计价，再扣除该阶梯折扣
func (s *CatalogService) QuoteListing(ctx context.Context, listingTypeID int64, days int) (*dto.QuoteResponse, error) {
	if days <= 0 {
		return nil, ErrInvalidDuration
	}
	lt, err := s.planRepo.GetListingType(ctx, listingTypeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingTypeNotFound
		}
		return nil, err
	}

	tier, ok := pickTier(lt.Tiers.Data(), days)
	if !ok {
		return nil, fmt.Errorf("listing type %s has no tier for %d days: %w", lt.Code, days, ErrInvalidDuration)
	}

	subtotal := tier.PricePerDay * int64(days)
	discount := subtotal * int64(tier.DiscountPercent) / 100
	return &dto.QuoteResponse{
		ListingTypeID:   lt.ID,
		Code:            lt.Code,
		Days:            days,
		PricePerDay:     tier.PricePerDay,
		DiscountPercent: tier.DiscountPercent,
		Subtotal:        subtotal,
		Discount:        discount,
		Total:           subtotal - discount,
	}, nil
}

func pickTier(tiers []model.PricingTier, days int) (model.PricingTier, bool) {
	sorted := make([]model.PricingTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinDays < sorted[j].MinDays })

	var picked model.PricingTier
	found := false
	for _, t := range sorted {
		if days >= t.MinDays {
			picked = t
			found = true
		}
	}
	return picked, found
}

// defaultPlans 默认套餐目录
func defaultPlans() []model.PackagePlan {
	quotas := func(q ...model.PlanQuota) datatypes.JSONType[[]model.PlanQuota] {
		return datatypes.NewJSONType(q)
	}
	return []model.PackagePlan{
		{
			Name: "Dùng thử", Kind: model.PlanKindTrial, Price: 0,
			Description: "Gói dùng thử miễn phí", FreePushCount: 0, SortOrder: 1, GrantsLandlord: true,
			Quotas: quotas(model.PlanQuota{ListingType: "normal", Limit: 2}),
		},
		{
			Name: "Cơ bản", Kind: model.PlanKindBasic, Price: 200000,
			Duration: 1, DurationUnit: model.DurationMonth, FreePushCount: 2, SortOrder: 2, GrantsLandlord: true,
			Quotas: quotas(model.PlanQuota{ListingType: "vip", Limit: 1}, model.PlanQuota{ListingType: "normal", Limit: 5}),
		},
		{
			Name: "VIP", Kind: model.PlanKindVIP, Price: 350000,
			Duration: 1, DurationUnit: model.DurationMonth, FreePushCount: 3, SortOrder: 3, GrantsLandlord: true,
			Quotas: quotas(model.PlanQuota{ListingType: "vip", Limit: 2}, model.PlanQuota{ListingType: "normal", Limit: 8}),
		},
		{
			Name: "Premium", Kind: model.PlanKindPremium, Price: 500000,
			Duration: 1, DurationUnit: model.DurationMonth, FreePushCount: 5, SortOrder: 4, GrantsLandlord: true,
			Quotas: quotas(model.PlanQuota{ListingType: "vip", Limit: 3}, model.PlanQuota{ListingType: "normal", Limit: 10}),
		},
	}
}

func defaultListingTypes() []model.ListingType {
	tiers := func(t ...model.PricingTier) datatypes.JSONType[[]model.PricingTier] {
		return datatypes.NewJSONType(t)
	}
	return []model.ListingType{
		{
			Code: "vip", Name: "Tin VIP", Color: "#e53935", Priority: 10,
			Tiers: tiers(
				model.PricingTier{MinDays: 1, PricePerDay: 20000},
				model.PricingTier{MinDays: 7, PricePerDay: 18000, DiscountPercent: 5},
				model.PricingTier{MinDays: 30, PricePerDay: 15000, DiscountPercent: 10},
			),
		},
		{
			Code: "normal", Name: "Tin thường", Color: "#1e88e5", Priority: 1,
			Tiers: tiers(
				model.PricingTier{MinDays: 1, PricePerDay: 5000},
				model.PricingTier{MinDays: 30, PricePerDay: 4000, DiscountPercent: 5},
			),
		},
	}
}

// SeedDefaults 写入默认套餐与房源类型，按名称/代码去重，可重复执行
func (s *CatalogService) SeedDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, plan := range defaultPlans() {
		_, err := s.planRepo.GetByName(ctx, plan.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, err
		}
		plan.IsActive = true
		if err := s.planRepo.Create(ctx, &plan); err != nil {
			return created, fmt.Errorf("seed plan %s: %w", plan.Name, err)
		}
		created++
		s.logger.Info("seeded plan", "plan_id", plan.ID, "name", plan.Name)
	}

	for _, lt := range defaultListingTypes() {
		_, err := s.planRepo.GetListingTypeByCode(ctx, lt.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, err
		}
		lt.IsActive = true
		if err := s.planRepo.CreateListingType(ctx, &lt); err != nil {
			return created, fmt.Errorf("seed listing type %s: %w", lt.Code, err)
		}
		created++
		s.logger.Info("seeded listing type", "code", lt.Code)
	}
	return created, nil
}
