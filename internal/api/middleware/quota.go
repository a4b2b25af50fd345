package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/qhuy1504/smart-tro-server/internal/pkg/response"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

type listingTypeBody struct {
	ListingType string `json:"listing_type"`
}

// QuotaCheck 发布房源前检查当前套餐是否还有该类型配额。
// 类型取自 query 参数 listing_type，没有时读取 JSON 请求体（请求体会被缓存，后续可用 ShouldBindBodyWith 再次读取）
func QuotaCheck(quotaService *service.QuotaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		listingType := c.Query("listing_type")
		if listingType == "" {
			var body listingTypeBody
			if err := c.ShouldBindBodyWith(&body, binding.JSON); err == nil {
				listingType = body.ListingType
			}
		}
		if listingType == "" {
			response.ParamError(c, "缺少房源类型")
			c.Abort()
			return
		}

		hasQuota, err := quotaService.CheckQuota(c.Request.Context(), userID, listingType)
		if err != nil {
			response.ServerError(c, "配额检查失败")
			c.Abort()
			return
		}

		if !hasQuota {
			response.QuotaError(c, "当前套餐没有可用的"+listingType+"配额")
			c.Abort()
			return
		}

		c.Next()
	}
}
