package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/qhuy1504/smart-tro-server/internal/api/middleware"
	"github.com/qhuy1504/smart-tro-server/internal/model/dto"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/response"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

type PackageHandler struct {
	catalogService *service.CatalogService
	quotaService   *service.QuotaService
}

func NewPackageHandler(catalogService *service.CatalogService, quotaService *service.QuotaService) *PackageHandler {
	return &PackageHandler{
		catalogService: catalogService,
		quotaService:   quotaService,
	}
}

// Plans 在售套餐
// GET /api/v1/packages/plans
func (h *PackageHandler) Plans(c *gin.Context) {
	plans, err := h.catalogService.ListPlans(c.Request.Context())
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, plans)
}

// ListingTypes 房源类型与计价阶梯
// GET /api/v1/packages/listing-types
func (h *PackageHandler) ListingTypes(c *gin.Context) {
	types, err := h.catalogService.ListListingTypes(c.Request.Context())
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, types)
}

// Quote 单条房源按天报价
// GET /api/v1/packages/listing-types/:id/quote?days=N
func (h *PackageHandler) Quote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的房源类型ID")
		return
	}
	days, err := strconv.Atoi(c.Query("days"))
	if err != nil {
		response.ParamError(c, "无效的天数")
		return
	}

	quote, err := h.catalogService.QuoteListing(c.Request.Context(), id, days)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, quote)
}

// Me 当前套餐与配额，读取前先处理到期
// GET /api/v1/packages/me
func (h *PackageHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.quotaService.GetQuota(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, info)
}

// Reserve 发布房源时占用配额
// POST /api/v1/packages/reserve
func (h *PackageHandler) Reserve(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ReserveQuotaRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	inst, err := h.quotaService.ConsumeQuota(c.Request.Context(), userID, req.ListingID, req.ListingType)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"instance_id": inst.InstanceID,
		"remaining":   inst.Remaining(req.ListingType),
	})
}

// Release 删除或下架房源后归还配额
// POST /api/v1/packages/release
func (h *PackageHandler) Release(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ReleaseQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.quotaService.ReleaseQuota(c.Request.Context(), userID, req.ListingID); err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMessage(c, "配额已释放", nil)
}
