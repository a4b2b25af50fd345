package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

// ExpiryResult 单个用户一次过期处理的结果
type ExpiryResult struct {
	Expired     []string
	Deactivated int64
	Rebound     int
	Demoted     bool
}

type ExpiryService struct {
	userRepo *repository.UserRepository
	listings ListingStore
	notifier *notify.Dispatcher
	clock    clock.Clock
	cfg      config.SchedulerConfig
	logger   *slog.Logger
}

func NewExpiryService(
	userRepo *repository.UserRepository,
	listings ListingStore,
	notifier *notify.Dispatcher,
	clk clock.Clock,
	cfg config.SchedulerConfig,
	logger *slog.Logger,
) *ExpiryService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryService{
		userRepo: userRepo,
		listings: listings,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
}

// ExpireUser 同步处理单个用户的到期实例：清零配额、停用房源、自动升级标记房源、必要时降级角色
func (s *ExpiryService) ExpireUser(ctx context.Context, userID int64) (*ExpiryResult, error) {
	now := s.clock.Now()

	var expired []model.EntitlementInstance
	var rebind []model.Listing
	var target model.EntitlementInstance
	demoted := false

	_, saved, err := updateEntitlements(ctx, s.userRepo, userID, func(u *model.User) error {
		expired, rebind, demoted = nil, nil, false

		st := u.Entitlements()
		next, due := st.ExpireDue(now)
		if len(due) == 0 {
			if sameExpiry(u.NextPackageExpiry, next.NextExpiry()) && u.HasPackage == next.HasPackage(now) {
				return errNoChange
			}
			u.SetEntitlements(next, now)
			return nil
		}
		expired = due

		if next.Current != nil && next.Current.Live(now) {
			ids := make([]string, 0, len(due))
			for _, e := range due {
				ids = append(ids, e.InstanceID)
			}
			flagged, err := s.listings.FindAutoUpgrade(ctx, u.ID, ids)
			if err != nil {
				return err
			}
			cur := *next.Current
			for _, l := range flagged {
				if !l.PackageActive || cur.Remaining(l.ListingType) <= 0 {
					continue
				}
				cur = cur.WithUsed(l.ListingType, 1)
				rebind = append(rebind, l)
			}
			next = next.WithCurrent(cur)
			target = cur
		}

		if u.Role == model.RoleLandlord && !next.HasLiveLandlordGrant(now) {
			for _, e := range due {
				if e.GrantsLandlord {
					u.Role = model.RoleTenant
					demoted = true
					break
				}
			}
		}

		u.SetEntitlements(next, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ExpiryResult{Demoted: demoted && saved}
	if !saved || len(expired) == 0 {
		return result, nil
	}

	for _, l := range rebind {
		err := s.listings.UpdatePackageInfo(ctx, l.ID, target.InstanceID, l.ListingType, target.ExpiryDate, model.ListingPackageActive)
		if err != nil {
			s.logger.Error("auto upgrade listing failed", "listing_id", l.ID, "instance_id", target.InstanceID, "error", err)
			continue
		}
		result.Rebound++
	}

	for _, e := range expired {
		n, err := s.listings.BulkDeactivateByInstance(ctx, userID, e.InstanceID, model.ListingPackageExpired)
		if err != nil {
			s.logger.Error("deactivate listings failed", "user_id", userID, "instance_id", e.InstanceID, "error", err)
		}
		result.Deactivated += n
		result.Expired = append(result.Expired, e.InstanceID)

		s.notifier.Dispatch(notify.Event{
			Type:       notify.EventPackageExpired,
			UserID:     userID,
			InstanceID: e.InstanceID,
			PlanName:   e.PlanName,
			OccurredAt: now,
		})
	}
	if result.Demoted {
		s.notifier.Dispatch(notify.Event{
			Type:       notify.EventRoleChanged,
			UserID:     userID,
			Message:    string(model.RoleTenant),
			OccurredAt: now,
		})
	}

	s.logger.Info("package expired",
		"user_id", userID, "instances", result.Expired, "deactivated", result.Deactivated,
		"rebound", result.Rebound, "demoted", result.Demoted)
	return result, nil
}

// SweepDue 细粒度扫描：只处理 next_package_expiry 已过的用户
func (s *ExpiryService) SweepDue(ctx context.Context) BatchResult {
	ids, err := s.userRepo.ListDueForExpiry(ctx, s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("list due users failed", "error", err)
		return BatchResult{}
	}
	return runBatch(ctx, s.logger, "expiry_fine", ids, s.cfg.Concurrency, s.cfg.ItemTimeout, s.expireOne)
}

// SweepAll 每日全量扫描：所有持有套餐的用户，外加房源修复与 used 重算
func (s *ExpiryService) SweepAll(ctx context.Context) BatchResult {
	var total BatchResult
	seen := make(map[int64]bool)

	var afterID int64
	for {
		ids, err := s.userRepo.ListWithPackages(ctx, afterID, s.batchSize())
		if err != nil {
			s.logger.Error("list users with packages failed", "error", err)
			break
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			seen[id] = true
		}
		total = total.add(runBatch(ctx, s.logger, "expiry_coarse", ids, s.cfg.Concurrency, s.cfg.ItemTimeout, s.sweepOne))
		afterID = ids[len(ids)-1]
		if ctx.Err() != nil {
			return total
		}
	}

	owners, err := s.listings.ListActiveOwnerIDs(ctx)
	if err != nil {
		s.logger.Error("list listing owners failed", "error", err)
		return total
	}
	var orphans []int64
	for _, id := range owners {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	return total.add(runBatch(ctx, s.logger, "expiry_repair", orphans, s.cfg.Concurrency, s.cfg.ItemTimeout, s.repairOne))
}

func (s *ExpiryService) expireOne(ctx context.Context, userID int64) error {
	res, err := s.ExpireUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(res.Expired) == 0 {
		return errSkipped
	}
	return nil
}

func (s *ExpiryService) sweepOne(ctx context.Context, userID int64) error {
	if _, err := s.ExpireUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.RepairListings(ctx, userID); err != nil {
		return err
	}
	_, err := s.ReconcileUsage(ctx, userID)
	return err
}

func (s *ExpiryService) repairOne(ctx context.Context, userID int64) error {
	n, err := s.RepairListings(ctx, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errSkipped
	}
	return nil
}

// RepairListings 停用仍绑定在已失效实例上的有效房源
func (s *ExpiryService) RepairListings(ctx context.Context, userID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	live := user.Entitlements().LiveInstances(s.clock.Now())

	active, err := s.listings.FindActiveByOwner(ctx, userID)
	if err != nil {
		return 0, err
	}
	var stale []int64
	for _, l := range active {
		if !live[l.PackageInstanceID] {
			stale = append(stale, l.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := s.listings.DeactivateByIDs(ctx, stale, model.ListingPackageExpired)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("repaired stale listings", "user_id", userID, "count", n)
	return n, nil
}

// ReconcileUsage 按实际绑定的房源重算有效实例的 used，返回是否有改动
func (s *ExpiryService) ReconcileUsage(ctx context.Context, userID int64) (bool, error) {
	now := s.clock.Now()
	_, saved, err := updateEntitlements(ctx, s.userRepo, userID, func(u *model.User) error {
		st := u.Entitlements()
		changed := false
		for id := range st.LiveInstances(now) {
			inst, _ := st.Find(id)
			counts, err := s.listings.CountByInstance(ctx, u.ID, id)
			if err != nil {
				return err
			}
			recounted := inst.WithUsage(counts)
			if !sameUsage(inst, recounted) {
				st, _ = st.UpdateInstance(recounted)
				changed = true
			}
		}
		if !changed {
			return errNoChange
		}
		u.SetEntitlements(st, now)
		return nil
	})
	if err != nil {
		return false, err
	}
	if saved {
		s.logger.Info("usage reconciled", "user_id", userID)
	}
	return saved, nil
}

func (s *ExpiryService) batchSize() int {
	if s.cfg.BatchSize <= 0 {
		return 500
	}
	return s.cfg.BatchSize
}

func (r BatchResult) add(o BatchResult) BatchResult {
	return BatchResult{
		Total:     r.Total + o.Total,
		Succeeded: r.Succeeded + o.Succeeded,
		Skipped:   r.Skipped + o.Skipped,
		Failed:    r.Failed + o.Failed,
	}
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameUsage(a, b model.EntitlementInstance) bool {
	if len(a.Quotas) != len(b.Quotas) {
		return false
	}
	for i := range a.Quotas {
		if a.Quotas[i].Used != b.Quotas[i].Used {
			return false
		}
	}
	return true
}
