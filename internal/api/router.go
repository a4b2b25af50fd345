package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/api/handler"
	"github.com/qhuy1504/smart-tro-server/internal/api/middleware"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

type Router struct {
	packageHandler   *handler.PackageHandler
	orderHandler     *handler.OrderHandler
	paymentHandler   *handler.PaymentHandler
	websocketHandler *handler.WebSocketHandler
	quotaService     *service.QuotaService
	cfg              *config.Config
}

func NewRouter(
	packageHandler *handler.PackageHandler,
	orderHandler *handler.OrderHandler,
	paymentHandler *handler.PaymentHandler,
	websocketHandler *handler.WebSocketHandler,
	quotaService *service.QuotaService,
	cfg *config.Config,
) *Router {
	return &Router{
		packageHandler:   packageHandler,
		orderHandler:     orderHandler,
		paymentHandler:   paymentHandler,
		websocketHandler: websocketHandler,
		quotaService:     quotaService,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 套餐目录
		packages := api.Group("/packages")
		{
			packages.GET("/plans", r.packageHandler.Plans)
			packages.GET("/listing-types", r.packageHandler.ListingTypes)
			packages.GET("/listing-types/:id/quote", r.packageHandler.Quote)
		}

		// 支付回调，由网关调用，不走用户认证
		payments := api.Group("/payments")
		{
			payments.POST("/bank/webhook", r.paymentHandler.BankWebhook)
			payments.GET("/vnpay/return", r.paymentHandler.VNPayReturn)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			mine := authenticated.Group("/packages")
			{
				mine.GET("/me", r.packageHandler.Me)
				mine.POST("/reserve", middleware.QuotaCheck(r.quotaService), r.packageHandler.Reserve)
				mine.POST("/release", r.packageHandler.Release)
			}

			orders := authenticated.Group("/orders")
			{
				orders.POST("", r.orderHandler.Create)
				orders.GET("", r.orderHandler.List)
				orders.GET("/:id", r.orderHandler.Get)
				orders.GET("/:id/qr.png", r.orderHandler.QRCode)
			}
		}
	}

	return engine
}
