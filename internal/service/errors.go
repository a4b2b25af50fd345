package service

import "errors"

var (
	ErrUserNotFound        = errors.New("用户不存在")
	ErrPlanNotFound        = errors.New("套餐不存在")
	ErrPlanInactive        = errors.New("套餐已下架")
	ErrListingTypeNotFound = errors.New("房源类型不存在")
	ErrInvalidDuration     = errors.New("购买时长无效")
	ErrTrialUsed           = errors.New("试用套餐只能领取一次")
	ErrRenewalWithoutPlan  = errors.New("没有可续费的同款套餐")
	ErrInvalidMigration    = errors.New("迁移房源的类型不在新套餐内")
	ErrOrderNotFound       = errors.New("订单不存在")
	ErrOrderNotPaid        = errors.New("订单尚未支付")
	ErrInvalidSignature    = errors.New("签名校验失败")
	ErrInvalidPayload      = errors.New("回调参数无效")
	ErrQuotaExceeded       = errors.New("套餐配额已用完")
	ErrNoActivePackage     = errors.New("当前没有有效套餐")
	ErrListingNotFound     = errors.New("房源不存在")
	ErrConcurrentUpdate    = errors.New("套餐数据并发更新冲突，请重试")
)
