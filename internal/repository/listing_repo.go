package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
)

// ListingRepository 房源服务对外暴露的套餐绑定接口
type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) Create(ctx context.Context, listing *model.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *ListingRepository) FindByIDs(ctx context.Context, ownerID int64, ids []int64) ([]model.Listing, error) {
	var listings []model.Listing
	if len(ids) == 0 {
		return listings, nil
	}
	err := r.db.WithContext(ctx).Where("owner_id = ? AND id IN ?", ownerID, ids).
		Order("id ASC").Find(&listings).Error
	return listings, err
}

func (r *ListingRepository) FindByOwnerAndInstance(ctx context.Context, ownerID int64, instanceID string) ([]model.Listing, error) {
	var listings []model.Listing
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND package_instance_id = ?", ownerID, instanceID).
		Order("id ASC").Find(&listings).Error
	return listings, err
}

// FindActiveByOwner 仍处于有效绑定的房源
func (r *ListingRepository) FindActiveByOwner(ctx context.Context, ownerID int64) ([]model.Listing, error) {
	var listings []model.Listing
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND package_active = ?", ownerID, true).
		Order("id ASC").Find(&listings).Error
	return listings, err
}

// FindAutoUpgrade 标记了到期自动升级的房源
func (r *ListingRepository) FindAutoUpgrade(ctx context.Context, ownerID int64, instanceIDs []string) ([]model.Listing, error) {
	var listings []model.Listing
	if len(instanceIDs) == 0 {
		return listings, nil
	}
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND auto_upgrade = ? AND package_instance_id IN ?", ownerID, true, instanceIDs).
		Order("id ASC").Find(&listings).Error
	return listings, err
}

// UpdatePackageInfo 重新绑定到实例并激活，清除自动升级标记
func (r *ListingRepository) UpdatePackageInfo(ctx context.Context, listingID int64, instanceID, listingType string, expiry *time.Time, status model.ListingPackageStatus) error {
	return r.db.WithContext(ctx).Model(&model.Listing{}).Where("id = ?", listingID).
		Updates(map[string]interface{}{
			"package_instance_id": instanceID,
			"listing_type":        listingType,
			"package_active":      status == model.ListingPackageActive,
			"package_expiry":      expiry,
			"package_status":      status,
			"auto_upgrade":        false,
		}).Error
}

// BulkDeactivateByInstance 停用绑定到实例的有效房源，package_expiry 保持不变
func (r *ListingRepository) BulkDeactivateByInstance(ctx context.Context, ownerID int64, instanceID string, status model.ListingPackageStatus) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("owner_id = ? AND package_instance_id = ? AND package_active = ?", ownerID, instanceID, true).
		Updates(map[string]interface{}{
			"package_active": false,
			"package_status": status,
			"auto_upgrade":   false,
		})
	return result.RowsAffected, result.Error
}

// DeactivateByIDs 按 ID 停用
func (r *ListingRepository) DeactivateByIDs(ctx context.Context, ids []int64, status model.ListingPackageStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("id IN ? AND package_active = ?", ids, true).
		Updates(map[string]interface{}{
			"package_active": false,
			"package_status": status,
			"auto_upgrade":   false,
		})
	return result.RowsAffected, result.Error
}

// FlagAutoUpgrade 给仍有效但不属于新实例的房源打标记
func (r *ListingRepository) FlagAutoUpgrade(ctx context.Context, ownerID int64, exceptInstanceID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("owner_id = ? AND package_active = ? AND package_instance_id <> ?", ownerID, true, exceptInstanceID).
		Update("auto_upgrade", true)
	return result.RowsAffected, result.Error
}

// CountByInstance 按房源类型统计绑定到实例的未删除房源
func (r *ListingRepository) CountByInstance(ctx context.Context, ownerID int64, instanceID string) (map[string]int, error) {
	var rows []struct {
		ListingType string
		Count       int
	}
	err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Select("listing_type, COUNT(*) AS count").
		Where("owner_id = ? AND package_instance_id = ?", ownerID, instanceID).
		Group("listing_type").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ListingType] = row.Count
	}
	return counts, nil
}

// ListActiveOwnerIDs 有有效绑定房源的房东
func (r *ListingRepository) ListActiveOwnerIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("package_active = ?", true).
		Distinct("owner_id").Pluck("owner_id", &ids).Error
	return ids, err
}
