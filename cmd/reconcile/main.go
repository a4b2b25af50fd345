package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/bootstrap"
	"github.com/qhuy1504/smart-tro-server/internal/database"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/vnpay"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

var (
	dryRun      = flag.Bool("dry-run", true, "Dry run mode, only report what would change")
	seed        = flag.Bool("seed", false, "Seed default plans and listing types")
	expireAll   = flag.Bool("expire-all", false, "Run the full expiry sweep with listing repair and usage recount")
	cancelStale = flag.Bool("cancel-stale", false, "Cancel unpaid orders past the auto-cancel timeout")
	reapply     = flag.Bool("reapply", false, "Apply entitlements for paid orders that never got one")
	recount     = flag.Bool("recount", false, "Recount quota usage for -user")
	userID      = flag.Int64("user", 0, "Only process this user (expire, repair listings, recount)")
	timeout     = flag.Duration("timeout", 10*time.Minute, "Overall timeout")
)

type services struct {
	catalog    *service.CatalogService
	expiry     *service.ExpiryService
	autoCancel *service.AutoCancelService
	reapply    *service.ReapplyService
	userRepo   *repository.UserRepository
	orderRepo  *repository.OrderRepository
	clock      clock.Clock
	cfg        *config.Config
}

func main() {
	flag.Parse()
	bootstrap.LoadEnv()

	// 加载配置
	cfg, err := config.Load(bootstrap.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger(os.Stderr, cfg.Server.Mode)

	// 连接数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if !*dryRun {
		if err := database.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// 运维工具不推送通知
	notifier := notify.NewDispatcher(notify.Nop{}, time.Second, logger)
	svc := buildServices(db, cfg, notifier, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Package reconcile  dry-run=%v\n", *dryRun)
	fmt.Println(strings.Repeat("=", 60))

	failed := false
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			failed = true
			logger.Error("step failed", "step", name, "error", err)
		}
	}

	if *seed {
		step("seed", func() error { return runSeed(ctx, svc) })
	}
	if *userID != 0 {
		step("user", func() error { return runUser(ctx, svc, *userID) })
	}
	if *expireAll {
		step("expire-all", func() error { return runExpireAll(ctx, svc) })
	}
	if *cancelStale {
		step("cancel-stale", func() error { return runCancelStale(ctx, svc) })
	}
	if *reapply {
		step("reapply", func() error { return runReapply(ctx, svc) })
	}

	if *dryRun {
		fmt.Println("\nDRY RUN MODE - nothing was written")
		fmt.Println("   Run with -dry-run=false to apply changes")
	}
	if failed {
		os.Exit(1)
	}
}

func buildServices(db *gorm.DB, cfg *config.Config, notifier *notify.Dispatcher, logger *slog.Logger) *services {
	clk := clock.Real{}
	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	listingRepo := repository.NewListingRepository(db)

	signer := vnpay.NewSigner(cfg.Payment.VNPay.TmnCode, cfg.Payment.VNPay.HashSecret, cfg.Payment.VNPay.PayURL)
	entitlements := service.NewEntitlementService(userRepo, planRepo, orderRepo, listingRepo, notifier, clk, cfg.Entitlement, logger)
	orders := service.NewOrderService(orderRepo, planRepo, userRepo, entitlements, signer, nil, notifier, clk, cfg, logger)

	return &services{
		catalog:    service.NewCatalogService(planRepo, logger),
		expiry:     service.NewExpiryService(userRepo, listingRepo, notifier, clk, cfg.Scheduler, logger),
		autoCancel: service.NewAutoCancelService(orders, orderRepo, clk, cfg.Order, cfg.Scheduler, logger),
		reapply:    service.NewReapplyService(entitlements, orderRepo, clk, cfg.Scheduler, logger),
		userRepo:   userRepo,
		orderRepo:  orderRepo,
		clock:      clk,
		cfg:        cfg,
	}
}

func runSeed(ctx context.Context, svc *services) error {
	fmt.Println("\n[seed] default catalog")
	if *dryRun {
		plans, err := svc.catalog.ListPlans(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("  %d active plans present\n", len(plans))
		return nil
	}
	n, err := svc.catalog.SeedDefaults(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("  created %d records\n", n)
	return nil
}

func runUser(ctx context.Context, svc *services, id int64) error {
	fmt.Printf("\n[user] %d\n", id)
	user, err := svc.userRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	st := user.Entitlements()
	fmt.Printf("  role=%s has_package=%v history=%d\n", user.Role, user.HasPackage, len(st.History))
	if cur := st.Current; cur != nil {
		fmt.Printf("  current=%s plan=%s status=%s expiry=%s\n", cur.InstanceID, cur.PlanName, cur.Status, formatTime(cur.ExpiryDate))
	}
	if *dryRun {
		return nil
	}

	res, err := svc.expiry.ExpireUser(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("  expired=%v deactivated=%d rebound=%d demoted=%v\n", res.Expired, res.Deactivated, res.Rebound, res.Demoted)

	repaired, err := svc.expiry.RepairListings(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("  repaired listings=%d\n", repaired)

	if *recount {
		changed, err := svc.expiry.ReconcileUsage(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("  usage recounted, changed=%v\n", changed)
	}
	return nil
}

func runExpireAll(ctx context.Context, svc *services) error {
	fmt.Println("\n[expire-all] full sweep")
	if *dryRun {
		due, err := svc.userRepo.ListDueForExpiry(ctx, svc.clock.Now(), 0)
		if err != nil {
			return err
		}
		fmt.Printf("  %d users past their earliest expiry\n", len(due))
		return nil
	}
	printBatch(svc.expiry.SweepAll(ctx))
	return nil
}

func runCancelStale(ctx context.Context, svc *services) error {
	fmt.Println("\n[cancel-stale] unpaid orders")
	if *dryRun {
		cutoff := svc.clock.Now().Add(-svc.cfg.Order.AutoCancelAfter)
		stale, err := svc.orderRepo.ListUnpaidBefore(ctx, cutoff, 0)
		if err != nil {
			return err
		}
		fmt.Printf("  %d unpaid orders created before %s\n", len(stale), cutoff.Format(time.RFC3339))
		return nil
	}
	printBatch(svc.autoCancel.CancelStale(ctx))
	return nil
}

func runReapply(ctx context.Context, svc *services) error {
	fmt.Println("\n[reapply] paid orders without entitlement")
	if *dryRun {
		pending, err := svc.orderRepo.ListPaidNotApplied(ctx, 0)
		if err != nil {
			return err
		}
		for _, o := range pending {
			fmt.Printf("  - %s user=%d total=%d paid_at=%s\n", o.ID, o.UserID, o.Total, formatTime(o.PaidAt))
		}
		fmt.Printf("  %d orders pending\n", len(pending))
		return nil
	}
	printBatch(svc.reapply.ReapplyPending(ctx))
	return nil
}

func printBatch(res service.BatchResult) {
	fmt.Printf("  total=%d succeeded=%d skipped=%d failed=%d\n", res.Total, res.Succeeded, res.Skipped, res.Failed)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
