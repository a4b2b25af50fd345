package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/api/middleware"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/response"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/vnpay"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
	"github.com/qhuy1504/smart-tro-server/internal/service"
	"github.com/qhuy1504/smart-tro-server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type testContext struct {
	DB        *gorm.DB
	Cfg       *config.Config
	Signer    *vnpay.Signer
	Orders    *service.OrderService
	Payments  *service.PaymentService
	Catalog   *service.CatalogService
	Quota     *service.QuotaService
	OrderRepo *repository.OrderRepository
}

func setupServices(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		Payment: config.PaymentConfig{
			Bank: config.BankConfig{
				BankBIN:       "970436",
				AccountNumber: "0123456789",
				AccountName:   "SMART TRO",
				RemarkPrefix:  "SMARTTRO",
				WebhookAPIKey: "hook-key",
			},
			VNPay: config.VNPayConfig{
				TmnCode:     "TESTTMN1",
				HashSecret:  "TESTSECRET",
				PayURL:      "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
				ReturnURL:   "https://api.smarttro.vn/api/v1/payments/vnpay/return",
				FrontendURL: "https://smarttro.vn/payment/result",
			},
		},
		Order:       config.OrderConfig{AutoCancelAfter: 15 * time.Minute},
		Scheduler:   config.SchedulerConfig{Concurrency: 2, ItemTimeout: time.Second, BatchSize: 50},
		Entitlement: config.EntitlementConfig{TrialDays: 7},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFake(testNow)
	notifier := notify.NewDispatcher(notify.Nop{}, time.Second, logger)
	signer := vnpay.NewSigner(cfg.Payment.VNPay.TmnCode, cfg.Payment.VNPay.HashSecret, cfg.Payment.VNPay.PayURL)

	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	listingRepo := repository.NewListingRepository(db)

	entitlements := service.NewEntitlementService(userRepo, planRepo, orderRepo, listingRepo, notifier, clk, cfg.Entitlement, logger)
	orders := service.NewOrderService(orderRepo, planRepo, userRepo, entitlements, signer, nil, notifier, clk, cfg, logger)
	payments := service.NewPaymentService(orders, entitlements, orderRepo, txRepo, signer, notifier, clk, cfg.Payment, logger)
	expiry := service.NewExpiryService(userRepo, listingRepo, notifier, clk, cfg.Scheduler, logger)

	return &testContext{
		DB:        db,
		Cfg:       cfg,
		Signer:    signer,
		Orders:    orders,
		Payments:  payments,
		Catalog:   service.NewCatalogService(planRepo, logger),
		Quota:     service.NewQuotaService(userRepo, listingRepo, expiry, clk, logger),
		OrderRepo: orderRepo,
	}
}

func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
