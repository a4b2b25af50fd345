package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义，HTTP 状态码统一为 200，客户端按 code 判断
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodeResourceNotFound = 1003
	CodeQuotaExceeded    = 1004
	CodeDuplicateAction  = 1005
	CodeNoPackage        = 1006
	CodeConflict         = 1009
	CodeServerError      = 5000
)

var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "参数错误",
	CodeAuthFailed:       "认证失败",
	CodeResourceNotFound: "资源不存在",
	CodeQuotaExceeded:    "套餐配额不足",
	CodeDuplicateAction:  "重复操作",
	CodeNoPackage:        "当前没有有效套餐",
	CodeConflict:         "数据已被更新，请重试",
	CodeServerError:      "服务器内部错误",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData 分页数据结构
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

// Message 错误码的默认文案，未知错误码返回服务器错误文案
func Message(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return codeMessages[CodeServerError]
}

func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, "success", data)
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: message, Data: data})
}

// SuccessPage 分页成功响应，items 为 nil 时输出空数组
func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	if items == nil {
		items = []struct{}{}
	}
	Success(c, PageData{Total: total, Page: page, PageSize: pageSize, Items: items})
}

// Error 错误响应，message 为空时使用默认文案
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = Message(code)
	}
	c.JSON(http.StatusOK, Response{Code: code, Message: message})
}

func ParamError(c *gin.Context, message string) { Error(c, CodeParamError, message) }

func AuthError(c *gin.Context, message string) { Error(c, CodeAuthFailed, message) }

func NotFoundError(c *gin.Context, message string) { Error(c, CodeResourceNotFound, message) }

func QuotaError(c *gin.Context, message string) { Error(c, CodeQuotaExceeded, message) }

func DuplicateError(c *gin.Context, message string) { Error(c, CodeDuplicateAction, message) }

// NoPackageError 需要有效套餐的操作
func NoPackageError(c *gin.Context, message string) { Error(c, CodeNoPackage, message) }

// ConflictError 套餐数据并发更新冲突，客户端可直接重试
func ConflictError(c *gin.Context, message string) { Error(c, CodeConflict, message) }

func ServerError(c *gin.Context, message string) { Error(c, CodeServerError, message) }
