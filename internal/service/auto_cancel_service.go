package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

// ReasonAutoCancel 超时未支付的取消原因
const ReasonAutoCancel = "auto_cancel_timeout"

type AutoCancelService struct {
	orders    *OrderService
	orderRepo *repository.OrderRepository
	clock     clock.Clock
	timeout   time.Duration
	cfg       config.SchedulerConfig
	logger    *slog.Logger
}

func NewAutoCancelService(
	orders *OrderService,
	orderRepo *repository.OrderRepository,
	clk clock.Clock,
	orderCfg config.OrderConfig,
	cfg config.SchedulerConfig,
	logger *slog.Logger,
) *AutoCancelService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := orderCfg.AutoCancelAfter
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &AutoCancelService{
		orders:    orders,
		orderRepo: orderRepo,
		clock:     clk,
		timeout:   timeout,
		cfg:       cfg,
		logger:    logger,
	}
}

// CancelStale 取消创建超过超时时间仍未支付的订单。取消前重新读取，避免与刚到的回调竞争
func (s *AutoCancelService) CancelStale(ctx context.Context) BatchResult {
	cutoff := s.clock.Now().Add(-s.timeout)
	stale, err := s.orderRepo.ListUnpaidBefore(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("list stale orders failed", "error", err)
		return BatchResult{}
	}

	ids := make([]string, 0, len(stale))
	for _, o := range stale {
		ids = append(ids, o.ID)
	}

	return runBatch(ctx, s.logger, "auto_cancel", ids, s.cfg.Concurrency, s.cfg.ItemTimeout, func(ctx context.Context, id string) error {
		fresh, err := s.orderRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !fresh.IsUnpaid() || !fresh.CreatedAt.Before(cutoff) {
			return errSkipped
		}
		ok, err := s.orders.CancelIfUnpaid(ctx, id, ReasonAutoCancel)
		if err != nil {
			return err
		}
		if !ok {
			return errSkipped
		}
		return nil
	})
}
