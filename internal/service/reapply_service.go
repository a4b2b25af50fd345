package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/queue"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

// ApplyRetrier 结算成功但发放失败时，把订单交给后台重试
type ApplyRetrier interface {
	Push(ctx context.Context, msg *queue.ApplyMessage) error
}

// Permanent 判断发放失败是否不值得重试
func Permanent(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrOrderNotPaid) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrTrialUsed)
}

// ReapplyService 补偿已支付但套餐尚未生效的订单
type ReapplyService struct {
	entitlements *EntitlementService
	orderRepo    *repository.OrderRepository
	clock        clock.Clock
	cfg          config.SchedulerConfig
	logger       *slog.Logger
}

func NewReapplyService(
	entitlements *EntitlementService,
	orderRepo *repository.OrderRepository,
	clk clock.Clock,
	cfg config.SchedulerConfig,
	logger *slog.Logger,
) *ReapplyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReapplyService{
		entitlements: entitlements,
		orderRepo:    orderRepo,
		clock:        clk,
		cfg:          cfg,
		logger:       logger,
	}
}

// ReapplyPending 对每个 entitlement_applied_at 为空的已支付订单重新执行 Apply
func (s *ReapplyService) ReapplyPending(ctx context.Context) BatchResult {
	orders, err := s.orderRepo.ListPaidNotApplied(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("list paid orders without entitlement failed", "error", err)
		return BatchResult{}
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return runBatch(ctx, s.logger, "reapply", ids, s.cfg.Concurrency, s.cfg.ItemTimeout, s.reapplyOne)
}

func (s *ReapplyService) reapplyOne(ctx context.Context, orderID string) error {
	_, err := s.entitlements.Apply(ctx, orderID)
	if err != nil && Permanent(err) {
		// 永久失败也打上标记，避免每轮重复捞出
		s.logger.Warn("entitlement cannot be applied, giving up", "order_id", orderID, "error", err)
		if _, markErr := s.orderRepo.MarkEntitlementApplied(ctx, orderID, s.clock.Now()); markErr != nil {
			return markErr
		}
		return errSkipped
	}
	return err
}

// applyOrRetry 结算后发放套餐，失败时交给重试队列，不影响已支付状态
func (s *PaymentService) applyOrRetry(ctx context.Context, order *model.Order) {
	_, err := s.entitlements.Apply(ctx, order.ID)
	if err == nil {
		return
	}
	s.logger.Error("apply entitlement failed", "order_id", order.ID, "error", err)
	if s.retry == nil || Permanent(err) {
		return
	}
	msg := &queue.ApplyMessage{OrderID: order.ID, Reason: err.Error(), EnqueuedAt: s.clock.Now()}
	if err := s.retry.Push(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Error("enqueue entitlement retry failed", "order_id", order.ID, "error", err)
	}
}

// SetApplyRetrier 注入发放重试队列，未注入时只依赖定时补偿
func (s *PaymentService) SetApplyRetrier(r ApplyRetrier) {
	s.retry = r
}
