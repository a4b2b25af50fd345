package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveEntitlements 以 entitlement_version 做比较交换，写入套餐快照与角色。
// 版本不一致时返回 false，由调用方重新读取后重试
func (r *UserRepository) SaveEntitlements(ctx context.Context, user *model.User) (bool, error) {
	expected := user.EntitlementVersion
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND entitlement_version = ?", user.ID, expected).
		Updates(map[string]interface{}{
			"current_package_plan": user.CurrentPackagePlan,
			"package_history":      user.PackageHistory,
			"has_package":          user.HasPackage,
			"next_package_expiry":  user.NextPackageExpiry,
			"role":                 user.Role,
			"entitlement_version":  expected + 1,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected != 1 {
		return false, nil
	}
	user.EntitlementVersion = expected + 1
	return true, nil
}

// ListDueForExpiry 最早到期时间已过的用户
func (r *UserRepository) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	query := r.db.WithContext(ctx).Model(&model.User{}).
		Where("next_package_expiry IS NOT NULL AND next_package_expiry < ?", now).
		Order("next_package_expiry ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Pluck("id", &ids).Error
	return ids, err
}

// ListWithPackages 按 ID 游标分页，返回持有或曾持有有效套餐的用户
func (r *UserRepository) ListWithPackages(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id > ? AND (has_package = ? OR next_package_expiry IS NOT NULL)", afterID, true).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}
