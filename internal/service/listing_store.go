package service

import (
	"context"
	"time"

	"github.com/qhuy1504/smart-tro-server/internal/model"
)

// ListingStore 房源服务暴露给套餐引擎的绑定操作，由 repository.ListingRepository 实现
type ListingStore interface {
	GetByID(ctx context.Context, id int64) (*model.Listing, error)
	FindByIDs(ctx context.Context, ownerID int64, ids []int64) ([]model.Listing, error)
	FindByOwnerAndInstance(ctx context.Context, ownerID int64, instanceID string) ([]model.Listing, error)
	FindActiveByOwner(ctx context.Context, ownerID int64) ([]model.Listing, error)
	FindAutoUpgrade(ctx context.Context, ownerID int64, instanceIDs []string) ([]model.Listing, error)
	UpdatePackageInfo(ctx context.Context, listingID int64, instanceID, listingType string, expiry *time.Time, status model.ListingPackageStatus) error
	BulkDeactivateByInstance(ctx context.Context, ownerID int64, instanceID string, status model.ListingPackageStatus) (int64, error)
	DeactivateByIDs(ctx context.Context, ids []int64, status model.ListingPackageStatus) (int64, error)
	FlagAutoUpgrade(ctx context.Context, ownerID int64, exceptInstanceID string) (int64, error)
	CountByInstance(ctx context.Context, ownerID int64, instanceID string) (map[string]int, error)
	ListActiveOwnerIDs(ctx context.Context) ([]int64, error)
}
