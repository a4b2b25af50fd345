package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qhuy1504/smart-tro-server/internal/model/dto"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
	logger         *slog.Logger
}

func NewPaymentHandler(paymentService *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// BankWebhook 银行到账通知。除鉴权失败外一律返回 200，防止银行重复推送
// POST /api/v1/payments/bank/webhook
func (h *PaymentHandler) BankWebhook(c *gin.Context) {
	if !h.paymentService.VerifyWebhookKey(c.GetHeader("Authorization")) {
		h.logger.Warn("bank webhook rejected", "security", true, "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, dto.WebhookResult{Success: false})
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		h.logger.Warn("read bank webhook body failed", "error", err)
		c.JSON(http.StatusOK, dto.WebhookResult{Success: true})
		return
	}

	var payload dto.BankWebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Warn("bank webhook body is not valid json", "error", err, "size", len(raw))
	}

	result := h.paymentService.HandleBankWebhook(c.Request.Context(), &payload, raw)
	c.JSON(http.StatusOK, result)
}

// VNPayReturn 网关回跳，处理后重定向到前端结果页
// GET /api/v1/payments/vnpay/return
func (h *PaymentHandler) VNPayReturn(c *gin.Context) {
	params := c.Request.URL.Query()
	result, err := h.paymentService.HandleVNPayReturn(c.Request.Context(), params)
	if err != nil {
		c.Redirect(http.StatusFound, h.paymentService.RedirectURL(service.VNPayStatusFailed, params.Get("vnp_TxnRef")))
		return
	}
	c.Redirect(http.StatusFound, h.paymentService.RedirectURL(result.Status, result.OrderID))
}
