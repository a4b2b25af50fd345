package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qhuy1504/smart-tro-server/internal/api/middleware"
	"github.com/qhuy1504/smart-tro-server/internal/model/dto"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/response"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// Create 创建订单
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), userID, &req, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "下单成功", resp)
}

// List 订单列表
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.orderService.ListOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 订单详情，前端轮询支付状态
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, service.ToOrderItem(order))
}

// QRCode 转账二维码图片
// GET /api/v1/orders/:id/qr.png
func (h *OrderHandler) QRCode(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	png, err := h.orderService.QRCodePNG(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "private, max-age=900")
	c.Data(http.StatusOK, "image/png", png)
}
