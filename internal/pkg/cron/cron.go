package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

// ExpirySweeper 套餐到期扫描
type ExpirySweeper interface {
	SweepDue(ctx context.Context) service.BatchResult
	SweepAll(ctx context.Context) service.BatchResult
}

// OrderCanceller 超时订单取消
type OrderCanceller interface {
	CancelStale(ctx context.Context) service.BatchResult
}

// Reapplier 已支付未生效订单的补偿
type Reapplier interface {
	ReapplyPending(ctx context.Context) service.BatchResult
}

const (
	JobExpiryFine   = "expiry_fine"
	JobExpiryCoarse = "expiry_coarse"
	JobAutoCancel   = "auto_cancel"
	JobReapply      = "reapply"
)

type Service struct {
	expiry   ExpirySweeper
	orders   OrderCanceller
	reapply  Reapplier
	cfg      config.SchedulerConfig
	logger   *slog.Logger
	cron     *robfig.Cron
	jobs     map[string]func(context.Context) service.BatchResult
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewService(expiry ExpirySweeper, orders OrderCanceller, reapply Reapplier, cfg config.SchedulerConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := robfig.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		expiry:  expiry,
		orders:  orders,
		reapply: reapply,
		cfg:     cfg,
		logger:  logger,
		cron: robfig.New(
			robfig.WithLocation(time.UTC),
			robfig.WithChain(robfig.Recover(cronLogger), robfig.SkipIfStillRunning(cronLogger)),
		),
		jobs:    make(map[string]func(context.Context) service.BatchResult),
		ctx:     ctx,
		cancel:  cancel,
	}
	if expiry != nil {
		s.jobs[JobExpiryFine] = expiry.SweepDue
		s.jobs[JobExpiryCoarse] = expiry.SweepAll
	}
	if orders != nil {
		s.jobs[JobAutoCancel] = orders.CancelStale
	}
	if reapply != nil {
		s.jobs[JobReapply] = reapply.ReapplyPending
	}
	return s
}

// Register 按配置注册任务，表达式为空的任务不启用
func (s *Service) Register() error {
	specs := map[string]string{
		JobExpiryFine:   s.cfg.ExpiryFineSpec,
		JobExpiryCoarse: s.cfg.ExpiryCoarseSpec,
		JobAutoCancel:   s.cfg.AutoCancelSpec,
		JobReapply:      s.cfg.ReapplySpec,
	}
	for name, spec := range specs {
		if spec == "" || s.jobs[name] == nil {
			continue
		}
		if _, err := s.cron.AddFunc(spec, func() { s.run(name) }); err != nil {
			return fmt.Errorf("register %s (%q): %w", name, spec, err)
		}
		s.logger.Info("cron job registered", "job", name, "spec", spec)
	}
	return nil
}

// Start 启动调度器
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("cron service started", "jobs", len(s.cron.Entries()))
}

// Stop 停止调度并取消正在执行的任务，等待其退出
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		s.logger.Info("cron service stopped")
	})
}

// RunNow 立即执行一次指定任务
func (s *Service) RunNow(name string) (service.BatchResult, error) {
	job, ok := s.jobs[name]
	if !ok {
		return service.BatchResult{}, fmt.Errorf("unknown job %q", name)
	}
	return job(s.ctx), nil
}

func (s *Service) run(name string) {
	start := time.Now()
	res := s.jobs[name](s.ctx)
	s.logger.Info("cron job finished",
		"job", name, "total", res.Total, "succeeded", res.Succeeded,
		"skipped", res.Skipped, "failed", res.Failed, "duration", time.Since(start))
}
