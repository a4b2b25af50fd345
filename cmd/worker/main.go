package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/bootstrap"
	"github.com/qhuy1504/smart-tro-server/internal/database"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/cron"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/queue"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/vnpay"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
	"github.com/qhuy1504/smart-tro-server/internal/service"
	"github.com/qhuy1504/smart-tro-server/internal/worker"
)

func main() {
	bootstrap.LoadEnv()

	// 加载配置
	cfg, err := config.Load(bootstrap.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger(os.Stdout, cfg.Server.Mode)

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, apply retry queue disabled", "error", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	userRepo := repository.NewUserRepository(db)
	publisher, closePublisher := bootstrap.NewPublisher(cfg.Notify, rdb, logger)
	defer closePublisher()
	publisher = bootstrap.WithEmail(publisher, cfg.Email, userRepo, logger)
	notifier := notify.NewDispatcher(publisher, cfg.Notify.Timeout, logger)
	clk := clock.Real{}

	// 初始化 Repository
	planRepo := repository.NewPlanRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	listingRepo := repository.NewListingRepository(db)

	// 初始化 Service
	signer := vnpay.NewSigner(cfg.Payment.VNPay.TmnCode, cfg.Payment.VNPay.HashSecret, cfg.Payment.VNPay.PayURL)
	entitlementService := service.NewEntitlementService(userRepo, planRepo, orderRepo, listingRepo, notifier, clk, cfg.Entitlement, logger)
	orderService := service.NewOrderService(orderRepo, planRepo, userRepo, entitlementService, signer, nil, notifier, clk, cfg, logger)
	expiryService := service.NewExpiryService(userRepo, listingRepo, notifier, clk, cfg.Scheduler, logger)
	autoCancelService := service.NewAutoCancelService(orderService, orderRepo, clk, cfg.Order, cfg.Scheduler, logger)
	reapplyService := service.NewReapplyService(entitlementService, orderRepo, clk, cfg.Scheduler, logger)

	scheduler := cron.NewService(expiryService, autoCancelService, reapplyService, cfg.Scheduler, logger)
	if err := scheduler.Register(); err != nil {
		logger.Error("failed to register cron jobs", "error", err)
		os.Exit(1)
	}

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if rdb != nil {
		processor := worker.NewProcessor(queue.NewQueue(rdb, cfg.Queue.ApplyQueue), entitlementService, cfg.Queue.MaxAttempts, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Run(ctx, cfg.Queue.Workers)
		}()
		logger.Info("apply workers started", "workers", cfg.Queue.Workers)
	}

	scheduler.Start()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal")

	cancel()
	scheduler.Stop()
	wg.Wait()
	notifier.Wait()
	logger.Info("worker shutdown complete")
}
