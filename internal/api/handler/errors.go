package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qhuy1504/smart-tro-server/internal/pkg/response"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

// respondError 把业务错误映射为统一响应码，未知错误只返回通用提示
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrListingNotFound),
		errors.Is(err, service.ErrListingTypeNotFound),
		errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, rootMessage(err))
	case errors.Is(err, service.ErrPlanInactive),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrRenewalWithoutPlan),
		errors.Is(err, service.ErrInvalidMigration):
		response.ParamError(c, rootMessage(err))
	case errors.Is(err, service.ErrTrialUsed):
		response.DuplicateError(c, rootMessage(err))
	case errors.Is(err, service.ErrQuotaExceeded):
		response.QuotaError(c, rootMessage(err))
	case errors.Is(err, service.ErrNoActivePackage):
		response.NoPackageError(c, rootMessage(err))
	case errors.Is(err, service.ErrConcurrentUpdate):
		response.ConflictError(c, rootMessage(err))
	default:
		response.ServerError(c, "")
	}
}

// rootMessage 只暴露哨兵错误本身的文案，不带内部包装信息
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
