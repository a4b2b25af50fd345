package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
)

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) Create(ctx context.Context, plan *model.PackagePlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *PlanRepository) GetByID(ctx context.Context, id int64) (*model.PackagePlan, error) {
	var plan model.PackagePlan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) GetByName(ctx context.Context, name string) (*model.PackagePlan, error) {
	var plan model.PackagePlan
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListActive 按 sort_order 返回上架套餐
func (r *PlanRepository) ListActive(ctx context.Context) ([]model.PackagePlan, error) {
	var plans []model.PackagePlan
	err := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("sort_order ASC, id ASC").Find(&plans).Error
	return plans, err
}

func (r *PlanRepository) CreateListingType(ctx context.Context, lt *model.ListingType) error {
	return r.db.WithContext(ctx).Create(lt).Error
}

func (r *PlanRepository) GetListingType(ctx context.Context, id int64) (*model.ListingType, error) {
	var lt model.ListingType
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&lt).Error
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (r *PlanRepository) GetListingTypeByCode(ctx context.Context, code string) (*model.ListingType, error) {
	var lt model.ListingType
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&lt).Error
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

// ListListingTypes 按展示优先级降序
func (r *PlanRepository) ListListingTypes(ctx context.Context) ([]model.ListingType, error) {
	var types []model.ListingType
	err := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("priority DESC, id ASC").Find(&types).Error
	return types, err
}
