package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

type EntitlementService struct {
	userRepo  *repository.UserRepository
	planRepo  *repository.PlanRepository
	orderRepo *repository.OrderRepository
	listings  ListingStore
	notifier  *notify.Dispatcher
	clock     clock.Clock
	trialDays int
	logger    *slog.Logger
}

func NewEntitlementService(
	userRepo *repository.UserRepository,
	planRepo *repository.PlanRepository,
	orderRepo *repository.OrderRepository,
	listings ListingStore,
	notifier *notify.Dispatcher,
	clk clock.Clock,
	cfg config.EntitlementConfig,
	logger *slog.Logger,
) *EntitlementService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementService{
		userRepo:  userRepo,
		planRepo:  planRepo,
		orderRepo: orderRepo,
		listings:  listings,
		notifier:  notifier,
		clock:     clk,
		trialDays: cfg.TrialDays,
		logger:    logger,
	}
}

// listingMove 一条升级迁移：房源 + 目标类型
type listingMove struct {
	listing     model.Listing
	listingType string
}

// applyOutcome 一次 mutate 的产物，每次重试都会重建
type applyOutcome struct {
	instance   model.EntitlementInstance
	reactivate []model.Listing
	leftovers  []int64
	promoted   bool
	existing   bool
	prior      *model.EntitlementInstance
}

// Apply 订单支付后发放套餐，可重复执行：同一订单只会生成一个实例
func (s *EntitlementService) Apply(ctx context.Context, orderID string) (*model.EntitlementInstance, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.PaymentStatus != model.PaymentPaid {
		return nil, ErrOrderNotPaid
	}
	if order.PlanID == nil {
		return nil, fmt.Errorf("order %s has no plan: %w", order.ID, ErrPlanNotFound)
	}
	plan, err := s.planRepo.GetByID(ctx, *order.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	now := s.clock.Now()
	expiry := s.expiryFor(plan, order, now)
	instanceID := uuid.NewString()
	moves := s.loadMoves(ctx, order, plan)

	var out applyOutcome
	user, saved, err := updateEntitlements(ctx, s.userRepo, order.UserID, func(u *model.User) error {
		out = applyOutcome{}
		st := u.Entitlements()
		if inst, ok := st.FindByOrder(order.ID); ok {
			out.instance = inst
			out.existing = true
			if order.IsRenewal {
				if prior, ok := st.PrecedingOfPlan(inst.InstanceID, plan.ID); ok {
					out.prior = &prior
				}
			}
			return errNoChange
		}
		if plan.Kind == model.PlanKindTrial && st.HasTrial() {
			return ErrTrialUsed
		}

		var next model.Entitlements
		prior, hasPrior := st.LatestOfPlan(plan.ID)
		if order.IsRenewal && hasPrior {
			bound, err := s.listings.FindByOwnerAndInstance(ctx, u.ID, prior.InstanceID)
			if err != nil {
				return fmt.Errorf("load listings of %s: %w", prior.InstanceID, err)
			}
			next = s.renew(st, prior, plan, order, instanceID, now, expiry, bound, &out)
		} else {
			if order.IsRenewal {
				s.logger.Warn("renewal without prior instance, applying as upgrade",
					"order_id", order.ID, "user_id", u.ID, "plan_id", plan.ID)
			}
			next = s.upgrade(st, plan, order, instanceID, now, expiry, moves, &out)
		}

		if plan.GrantsLandlord && u.Role == model.RoleTenant {
			u.Role = model.RoleLandlord
			out.promoted = true
		}
		u.SetEntitlements(next, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply order %s: %w", order.ID, err)
	}

	newID := out.instance.InstanceID
	if out.existing && out.prior != nil && out.instance.Live(now) {
		out.reactivate, out.leftovers, err = s.pendingReactivation(ctx, order.UserID, *out.prior, out.instance, now)
		if err != nil {
			s.logger.Error("resume renewal listings failed", "order_id", order.ID, "instance_id", newID, "error", err)
		}
	}
	if saved || out.existing {
		for _, mv := range moves {
			err := s.listings.UpdatePackageInfo(ctx, mv.listing.ID, newID, mv.listingType, out.instance.ExpiryDate, model.ListingPackageActive)
			if err != nil {
				s.logger.Error("migrate listing failed", "listing_id", mv.listing.ID, "instance_id", newID, "error", err)
			}
		}
		for _, l := range out.reactivate {
			err := s.listings.UpdatePackageInfo(ctx, l.ID, newID, l.ListingType, out.instance.ExpiryDate, model.ListingPackageActive)
			if err != nil {
				s.logger.Error("reactivate listing failed", "listing_id", l.ID, "instance_id", newID, "error", err)
			}
		}
		if len(out.leftovers) > 0 {
			if _, err := s.listings.DeactivateByIDs(ctx, out.leftovers, model.ListingPackageInactive); err != nil {
				s.logger.Error("deactivate leftover listings failed", "user_id", order.UserID, "error", err)
			}
		}
		if _, err := s.listings.FlagAutoUpgrade(ctx, order.UserID, newID); err != nil {
			s.logger.Error("flag auto upgrade failed", "user_id", order.UserID, "error", err)
		}
	}

	if _, err := s.orderRepo.MarkEntitlementApplied(ctx, order.ID, now); err != nil {
		s.logger.Error("mark entitlement applied failed", "order_id", order.ID, "error", err)
	}

	if saved {
		s.logger.Info("package activated",
			"order_id", order.ID, "user_id", order.UserID, "instance_id", newID,
			"plan", plan.Name, "renewal", order.IsRenewal, "migrated", len(moves), "reactivated", len(out.reactivate))
		s.notifier.Dispatch(notify.Event{
			Type:       notify.EventPackageActivated,
			UserID:     order.UserID,
			OrderID:    order.ID,
			InstanceID: newID,
			PlanName:   plan.Name,
			Amount:     order.Total,
			OccurredAt: now,
		})
		if out.promoted {
			s.notifier.Dispatch(notify.Event{
				Type:       notify.EventRoleChanged,
				UserID:     order.UserID,
				Message:    string(user.Role),
				OccurredAt: now,
			})
		}
	}

	inst := out.instance
	return &inst, nil
}

// upgrade 首购或升级：当前实例以 upgraded 归档且到期前继续有效，迁移记录写在来源实例上
func (s *EntitlementService) upgrade(st model.Entitlements, plan *model.PackagePlan, order *model.Order, instanceID string, now time.Time, expiry *time.Time, moves []listingMove, out *applyOutcome) model.Entitlements {
	var prevID string
	if st.Current != nil {
		prevID = st.Current.InstanceID
	}
	next := st.Archive(model.InstanceUpgraded, true)
	inst := model.MintInstance(plan, order.ID, instanceID, now, expiry)

	usage := make(map[string]int)
	for _, mv := range moves {
		usage[mv.listingType]++

		source, found := next.Find(mv.listing.PackageInstanceID)
		bound := found
		if !found && prevID != "" {
			source, found = next.Find(prevID)
		}
		if !found {
			continue
		}
		source = source.WithTransfer(model.TransferredListing{
			ListingID:      mv.listing.ID,
			Title:          mv.listing.Title,
			FromInstanceID: source.InstanceID,
			ToInstanceID:   instanceID,
			FromPlanName:   source.PlanName,
			ToPlanName:     plan.Name,
			TransferredAt:  now,
		})
		if bound && mv.listing.PackageActive {
			source = source.WithUsed(mv.listing.ListingType, -1)
		}
		next, _ = next.UpdateInstance(source)
	}

	if m := order.MigrationPayload(); m != nil && len(m.LimitsUsage) > 0 {
		inst = inst.WithUsage(m.LimitsUsage)
	} else if len(usage) > 0 {
		inst = inst.WithUsage(usage)
	}

	out.instance = inst
	return next.WithCurrent(inst)
}

// renew 续费同款套餐：上一实例以 renewed 归档，未到期前继续有效。
// 其绑定的房源在新配额内重新绑定，超出的房源留在原实例上直到到期
func (s *EntitlementService) renew(st model.Entitlements, prior model.EntitlementInstance, plan *model.PackagePlan, order *model.Order, instanceID string, now time.Time, expiry *time.Time, bound []model.Listing, out *applyOutcome) model.Entitlements {
	live := prior.Live(now)
	var next model.Entitlements
	if st.Current != nil && st.Current.InstanceID == prior.InstanceID {
		next = st.Archive(model.InstanceRenewed, live)
	} else {
		next = st.Archive(model.InstanceUpgraded, true)
	}
	archived, _ := next.Find(prior.InstanceID)
	if archived.IsActive {
		archived.Status = model.InstanceRenewed
		archived.IsActive = live
	}

	inst := model.MintInstance(plan, order.ID, instanceID, now, expiry)
	for _, l := range bound {
		if inst.Remaining(l.ListingType) > 0 {
			inst = inst.WithUsed(l.ListingType, 1)
			out.reactivate = append(out.reactivate, l)
			if live && l.PackageActive {
				archived = archived.WithUsed(l.ListingType, -1)
			}
			continue
		}
		// 原实例仍有效时不动，由 FlagAutoUpgrade 标记，到期再处理
		if l.PackageActive && !live {
			out.leftovers = append(out.leftovers, l.ID)
		}
	}
	next, _ = next.UpdateInstance(archived)

	out.instance = inst
	return next.WithCurrent(inst)
}

// pendingReactivation 续费在写入后中断时重跑：新实例已计入 used、但仍绑定在上一实例的房源
func (s *EntitlementService) pendingReactivation(ctx context.Context, userID int64, prior, inst model.EntitlementInstance, now time.Time) ([]model.Listing, []int64, error) {
	bound, err := s.listings.FindByOwnerAndInstance(ctx, userID, prior.InstanceID)
	if err != nil || len(bound) == 0 {
		return nil, nil, err
	}
	onNew, err := s.listings.CountByInstance(ctx, userID, inst.InstanceID)
	if err != nil {
		return nil, nil, err
	}
	var pending []model.Listing
	var leftovers []int64
	for _, l := range bound {
		if q, ok := inst.Quota(l.ListingType); ok && q.Used > onNew[l.ListingType] {
			onNew[l.ListingType]++
			pending = append(pending, l)
			continue
		}
		if l.PackageActive && !prior.Live(now) {
			leftovers = append(leftovers, l.ID)
		}
	}
	return pending, leftovers, nil
}

// loadMoves 读取迁移选择中属于该用户且类型在套餐内的房源，其余跳过
func (s *EntitlementService) loadMoves(ctx context.Context, order *model.Order, plan *model.PackagePlan) []listingMove {
	m := order.MigrationPayload()
	if m == nil || len(m.SelectedProperties) == 0 || order.IsRenewal {
		return nil
	}

	allowed := make(map[string]bool)
	for _, q := range plan.QuotaList() {
		allowed[q.ListingType] = true
	}

	ids := make([]int64, 0, len(m.SelectedProperties))
	for _, sel := range m.SelectedProperties {
		ids = append(ids, sel.PropertyID)
	}
	listings, err := s.listings.FindByIDs(ctx, order.UserID, ids)
	if err != nil {
		s.logger.Error("load migration listings failed", "order_id", order.ID, "error", err)
		return nil
	}
	byID := make(map[int64]model.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}

	seen := make(map[int64]bool)
	var moves []listingMove
	for _, sel := range m.SelectedProperties {
		l, ok := byID[sel.PropertyID]
		if !ok {
			s.logger.Warn("migration listing not found", "order_id", order.ID, "listing_id", sel.PropertyID)
			continue
		}
		if !allowed[sel.ListingType] {
			s.logger.Warn("migration listing type not in plan",
				"order_id", order.ID, "listing_id", sel.PropertyID, "listing_type", sel.ListingType)
			continue
		}
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		moves = append(moves, listingMove{listing: l, listingType: sel.ListingType})
	}
	return moves
}

// expiryFor 续费也从当前时间起算；试用套餐时长为 0 时使用配置的试用天数
func (s *EntitlementService) expiryFor(plan *model.PackagePlan, order *model.Order, now time.Time) *time.Time {
	duration, unit := order.Duration, order.DurationUnit
	if duration <= 0 {
		duration, unit = plan.Duration, plan.DurationUnit
	}
	if duration <= 0 {
		if plan.Kind != model.PlanKindTrial || s.trialDays <= 0 {
			return nil
		}
		duration, unit = s.trialDays, model.DurationDay
	}
	t := model.AddDuration(now, duration, unit)
	return &t
}
