package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/testutil"
)

func paymentRouter(ctx *testContext) *gin.Engine {
	h := NewPaymentHandler(ctx.Payments, nil)
	router := gin.New()
	router.POST("/payments/bank/webhook", h.BankWebhook)
	router.GET("/payments/vnpay/return", h.VNPayReturn)
	return router
}

func postWebhook(router *gin.Engine, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/payments/bank/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPaymentHandler_BankWebhook_Settles(t *testing.T) {
	ctx := setupServices(t)
	user := testutil.TestUser(t, ctx.DB)
	plan := testutil.TestPlan(t, ctx.DB)
	order := testutil.TestOrder(t, ctx.DB, user.ID, plan)

	body := `{"id":9001,"gateway":"Vietcombank","transactionDate":"2025-06-01 17:00:00",` +
		`"content":"` + order.PaymentRemark + `","transferType":"in","transferAmount":500000,"referenceCode":"FT9001"}`
	w := postWebhook(paymentRouter(ctx), "Apikey hook-key", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"result":"settled"}`, w.Body.String())

	fresh, err := ctx.OrderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, fresh.PaymentStatus)
}

func TestPaymentHandler_BankWebhook_RejectsBadKey(t *testing.T) {
	ctx := setupServices(t)

	w := postWebhook(paymentRouter(ctx), "Apikey wrong", `{"id":1}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false}`, w.Body.String())

	var count int64
	ctx.DB.Model(&model.Transaction{}).Count(&count)
	assert.Zero(t, count)
}

func TestPaymentHandler_BankWebhook_AlwaysAcknowledges(t *testing.T) {
	ctx := setupServices(t)

	w := postWebhook(paymentRouter(ctx), "Apikey hook-key", `not-json`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"result":"unmatched"}`, w.Body.String())

	w = postWebhook(paymentRouter(ctx), "Apikey hook-key", `{"content":"an trua","transferType":"in","transferAmount":10000}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	ctx.DB.Model(&model.Transaction{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func signedReturn(ctx *testContext, orderID, code string, amount int64) string {
	v := url.Values{}
	v.Set("vnp_TmnCode", ctx.Cfg.Payment.VNPay.TmnCode)
	v.Set("vnp_TxnRef", orderID)
	v.Set("vnp_Amount", strconv.FormatInt(amount*100, 10))
	v.Set("vnp_ResponseCode", code)
	v.Set("vnp_TransactionNo", "777")
	return ctx.Signer.Sign(v).Encode()
}

func TestPaymentHandler_VNPayReturn(t *testing.T) {
	ctx := setupServices(t)
	user := testutil.TestUser(t, ctx.DB)
	plan := testutil.TestPlan(t, ctx.DB)
	order := testutil.TestOrder(t, ctx.DB, user.ID, plan)

	w := performRequest(paymentRouter(ctx), "GET", "/payments/vnpay/return?"+signedReturn(ctx, order.ID, "00", 500000), nil)
	assert.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "smarttro.vn", loc.Host)
	assert.Equal(t, "success", loc.Query().Get("status"))
	assert.Equal(t, order.ID, loc.Query().Get("orderId"))
}

func TestPaymentHandler_VNPayReturn_BadSignature(t *testing.T) {
	ctx := setupServices(t)
	user := testutil.TestUser(t, ctx.DB)
	plan := testutil.TestPlan(t, ctx.DB)
	order := testutil.TestOrder(t, ctx.DB, user.ID, plan)

	query := signedReturn(ctx, order.ID, "00", 500000) + "&vnp_BankCode=NCB"
	w := performRequest(paymentRouter(ctx), "GET", "/payments/vnpay/return?"+query, nil)
	assert.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "failed", loc.Query().Get("status"))

	fresh, err := ctx.OrderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnpaid, fresh.PaymentStatus)
}
