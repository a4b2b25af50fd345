package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/api"
	"github.com/qhuy1504/smart-tro-server/internal/api/handler"
	"github.com/qhuy1504/smart-tro-server/internal/bootstrap"
	"github.com/qhuy1504/smart-tro-server/internal/database"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/oss"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/pubsub"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/queue"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/vnpay"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/ws"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
	"github.com/qhuy1504/smart-tro-server/internal/service"
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
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// 初始化 Redis，不可用时只影响通知和重试队列
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable", "error", err)
		rdb = nil
	} else {
		defer rdb.Close()
		logger.Info("redis connected")
	}

	// 初始化 OSS（可选）
	var uploader service.QRUploader
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			logger.Warn("failed to init oss client", "error", err)
		} else {
			uploader = ossClient
			logger.Info("oss client initialized")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 通知通道与 WebSocket 推送
	userRepo := repository.NewUserRepository(db)
	publisher, closePublisher := bootstrap.NewPublisher(cfg.Notify, rdb, logger)
	defer closePublisher()
	publisher = bootstrap.WithEmail(publisher, cfg.Email, userRepo, logger)
	notifier := notify.NewDispatcher(publisher, cfg.Notify.Timeout, logger)

	wsHub := ws.NewHub(logger)
	if rdb != nil {
		go func() {
			err := pubsub.NewSubscriber(rdb, cfg.Notify.Channel).Subscribe(ctx, wsHub.Deliver)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event subscription stopped", "error", err)
			}
		}()
	}

	clk := clock.Real{}
	signer := vnpay.NewSigner(cfg.Payment.VNPay.TmnCode, cfg.Payment.VNPay.HashSecret, cfg.Payment.VNPay.PayURL)

	// 初始化 Repository
	planRepo := repository.NewPlanRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	listingRepo := repository.NewListingRepository(db)

	// 初始化 Service
	catalogService := service.NewCatalogService(planRepo, logger)
	if n, err := catalogService.SeedDefaults(ctx); err != nil {
		logger.Warn("seed catalog failed", "error", err)
	} else if n > 0 {
		logger.Info("catalog seeded", "created", n)
	}
	entitlementService := service.NewEntitlementService(userRepo, planRepo, orderRepo, listingRepo, notifier, clk, cfg.Entitlement, logger)
	orderService := service.NewOrderService(orderRepo, planRepo, userRepo, entitlementService, signer, uploader, notifier, clk, cfg, logger)
	paymentService := service.NewPaymentService(orderService, entitlementService, orderRepo, txRepo, signer, notifier, clk, cfg.Payment, logger)
	if rdb != nil {
		paymentService.SetApplyRetrier(queue.NewQueue(rdb, cfg.Queue.ApplyQueue))
	}
	expiryService := service.NewExpiryService(userRepo, listingRepo, notifier, clk, cfg.Scheduler, logger)
	quotaService := service.NewQuotaService(userRepo, listingRepo, expiryService, clk, logger)

	// 初始化 Handler
	router := api.NewRouter(
		handler.NewPackageHandler(catalogService, quotaService),
		handler.NewOrderHandler(orderService),
		handler.NewPaymentHandler(paymentService, logger),
		handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, logger),
		quotaService,
		cfg,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	cancel()
	notifier.Wait()
	logger.Info("server stopped")
}
