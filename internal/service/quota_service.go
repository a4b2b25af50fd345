package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/model/dto"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

type QuotaService struct {
	userRepo *repository.UserRepository
	listings ListingStore
	expiry   *ExpiryService
	clock    clock.Clock
	logger   *slog.Logger
}

func NewQuotaService(userRepo *repository.UserRepository, listings ListingStore, expiry *ExpiryService, clk clock.Clock, logger *slog.Logger) *QuotaService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaService{
		userRepo: userRepo,
		listings: listings,
		expiry:   expiry,
		clock:    clk,
		logger:   logger,
	}
}

// refresh 读取前先同步处理到期，保证不会看到两次扫描之间的过期状态
func (s *QuotaService) refresh(ctx context.Context, userID int64) (*model.User, error) {
	if _, err := s.expiry.ExpireUser(ctx, userID); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetQuota 获取当前套餐与各类型剩余配额
func (s *QuotaService) GetQuota(ctx context.Context, userID int64) (*dto.QuotaInfo, error) {
	user, err := s.refresh(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	st := user.Entitlements()
	info := &dto.QuotaInfo{
		HasPackage: st.HasPackage(now),
		Role:       string(user.Role),
		Quotas:     []dto.QuotaItem{},
	}
	if st.Current == nil {
		return info, nil
	}

	cur := st.Current
	info.InstanceID = cur.InstanceID
	info.PlanName = cur.PlanName
	info.Status = string(cur.Status)
	info.FreePushCount = cur.FreePushCount
	if cur.ExpiryDate != nil {
		info.ExpiryDate = cur.ExpiryDate.Format(time.RFC3339)
	}
	for _, q := range cur.Quotas {
		info.Quotas = append(info.Quotas, dto.QuotaItem{
			ListingType: q.ListingType,
			Limit:       q.Limit,
			Used:        q.Used,
			Remaining:   cur.Remaining(q.ListingType),
		})
	}
	return info, nil
}

// CheckQuota 当前套餐是否还能发布该类型房源
func (s *QuotaService) CheckQuota(ctx context.Context, userID int64, listingType string) (bool, error) {
	user, err := s.refresh(ctx, userID)
	if err != nil {
		return false, err
	}
	cur := user.Entitlements().Current
	if cur == nil || !cur.Live(s.clock.Now()) {
		return false, nil
	}
	return cur.Remaining(listingType) > 0, nil
}

// ConsumeQuota 占用一个配额并把房源绑定到当前实例
func (s *QuotaService) ConsumeQuota(ctx context.Context, userID, listingID int64, listingType string) (*model.EntitlementInstance, error) {
	listing, err := s.ownedListing(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}
	if _, err := s.expiry.ExpireUser(ctx, userID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var inst model.EntitlementInstance
	_, _, err = updateEntitlements(ctx, s.userRepo, userID, func(u *model.User) error {
		st := u.Entitlements()
		if st.Current == nil || !st.Current.Live(now) {
			return ErrNoActivePackage
		}
		cur := *st.Current
		if listing.PackageActive && listing.PackageInstanceID == cur.InstanceID && listing.ListingType == listingType {
			inst = cur
			return errNoChange
		}
		if cur.Remaining(listingType) <= 0 {
			return ErrQuotaExceeded
		}
		inst = cur.WithUsed(listingType, 1)
		next := st.WithCurrent(inst)
		if listing.PackageActive && listing.PackageInstanceID != "" && listing.PackageInstanceID != cur.InstanceID {
			if prev, ok := next.Find(listing.PackageInstanceID); ok {
				next, _ = next.UpdateInstance(prev.WithUsed(listing.ListingType, -1))
			}
		}
		u.SetEntitlements(next, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.listings.UpdatePackageInfo(ctx, listing.ID, inst.InstanceID, listingType, inst.ExpiryDate, model.ListingPackageActive); err != nil {
		return nil, err
	}
	s.logger.Info("quota consumed", "user_id", userID, "listing_id", listingID, "listing_type", listingType, "instance_id", inst.InstanceID)
	return &inst, nil
}

// ReleaseQuota 房源删除或下架后归还配额并解除绑定
func (s *QuotaService) ReleaseQuota(ctx context.Context, userID, listingID int64) error {
	listing, err := s.ownedListing(ctx, userID, listingID)
	if err != nil {
		return err
	}
	if listing.PackageInstanceID == "" {
		return nil
	}
	if !listing.PackageActive {
		return s.listings.UpdatePackageInfo(ctx, listing.ID, "", listing.ListingType, listing.PackageExpiry, listing.PackageStatus)
	}

	_, _, err = updateEntitlements(ctx, s.userRepo, userID, func(u *model.User) error {
		st := u.Entitlements()
		inst, ok := st.Find(listing.PackageInstanceID)
		if !ok {
			return errNoChange
		}
		next, _ := st.UpdateInstance(inst.WithUsed(listing.ListingType, -1))
		u.SetEntitlements(next, s.clock.Now())
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.listings.UpdatePackageInfo(ctx, listing.ID, "", listing.ListingType, listing.PackageExpiry, model.ListingPackageInactive); err != nil {
		return err
	}
	s.logger.Info("quota released", "user_id", userID, "listing_id", listingID, "instance_id", listing.PackageInstanceID)
	return nil
}

func (s *QuotaService) ownedListing(ctx context.Context, userID, listingID int64) (*model.Listing, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if listing.OwnerID != userID {
		return nil, ErrListingNotFound
	}
	return listing, nil
}
