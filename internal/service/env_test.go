package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/vnpay"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
	"github.com/qhuy1504/smart-tro-server/internal/testutil"
)

var baseTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(t notify.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type testEnv struct {
	db       *gorm.DB
	clock    *clock.Fake
	cfg      *config.Config
	pub      *recordingPublisher
	notifier *notify.Dispatcher
	signer   *vnpay.Signer

	userRepo    *repository.UserRepository
	planRepo    *repository.PlanRepository
	orderRepo   *repository.OrderRepository
	txRepo      *repository.TransactionRepository
	listingRepo *repository.ListingRepository

	catalog      *CatalogService
	entitlements *EntitlementService
	orders       *OrderService
	payments     *PaymentService
	expiry       *ExpiryService
	autoCancel   *AutoCancelService
	quota        *QuotaService
}

func testConfig() *config.Config {
	return &config.Config{
		Payment: config.PaymentConfig{
			Bank: config.BankConfig{
				BankBIN:       "970436",
				BankName:      "Vietcombank",
				AccountNumber: "0123456789",
				AccountName:   "SMART TRO",
				RemarkPrefix:  "SMARTTRO",
			},
			VNPay: config.VNPayConfig{
				TmnCode:       "TESTTMN1",
				HashSecret:    "TESTSECRET",
				PayURL:        "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
				ReturnURL:     "https://api.smarttro.vn/api/v1/payments/vnpay/return",
				FrontendURL:   "https://smarttro.vn/payment/result",
				Locale:        "vn",
				ExpireMinutes: 15,
			},
		},
		Order: config.OrderConfig{AutoCancelAfter: 15 * time.Minute},
		Scheduler: config.SchedulerConfig{
			Concurrency: 4,
			ItemTimeout: 5 * time.Second,
			BatchSize:   100,
		},
		Entitlement: config.EntitlementConfig{TrialDays: 7},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		db:          db,
		clock:       clock.NewFake(baseTime),
		cfg:         testConfig(),
		pub:         &recordingPublisher{},
		userRepo:    repository.NewUserRepository(db),
		planRepo:    repository.NewPlanRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		txRepo:      repository.NewTransactionRepository(db),
		listingRepo: repository.NewListingRepository(db),
	}
	env.notifier = notify.NewDispatcher(env.pub, time.Second, logger)
	vc := env.cfg.Payment.VNPay
	env.signer = vnpay.NewSigner(vc.TmnCode, vc.HashSecret, vc.PayURL)

	env.catalog = NewCatalogService(env.planRepo, logger)
	env.entitlements = NewEntitlementService(env.userRepo, env.planRepo, env.orderRepo, env.listingRepo,
		env.notifier, env.clock, env.cfg.Entitlement, logger)
	env.orders = NewOrderService(env.orderRepo, env.planRepo, env.userRepo, env.entitlements,
		env.signer, nil, env.notifier, env.clock, env.cfg, logger)
	env.payments = NewPaymentService(env.orders, env.entitlements, env.orderRepo, env.txRepo,
		env.signer, env.notifier, env.clock, env.cfg.Payment, logger)
	env.expiry = NewExpiryService(env.userRepo, env.listingRepo, env.notifier, env.clock, env.cfg.Scheduler, logger)
	env.autoCancel = NewAutoCancelService(env.orders, env.orderRepo, env.clock, env.cfg.Order, env.cfg.Scheduler, logger)
	env.quota = NewQuotaService(env.userRepo, env.listingRepo, env.expiry, env.clock, logger)
	return env
}

// reloadUser 重新读取用户
func (e *testEnv) reloadUser(t *testing.T, id int64) *model.User {
	t.Helper()
	u, err := e.userRepo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return u
}

func (e *testEnv) reloadOrder(t *testing.T, id string) *model.Order {
	t.Helper()
	o, err := e.orderRepo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return o
}

func (e *testEnv) reloadListing(t *testing.T, id int64) *model.Listing {
	t.Helper()
	l, err := e.listingRepo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload listing: %v", err)
	}
	return l
}

// instance 生成一个从 baseTime 起、指定时长后到期的实例
func instance(plan *model.PackagePlan, id string, expiresIn time.Duration) model.EntitlementInstance {
	exp := baseTime.Add(expiresIn)
	return model.MintInstance(plan, "", id, baseTime.Add(-24*time.Hour), &exp)
}
