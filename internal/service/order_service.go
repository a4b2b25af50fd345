package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/model/dto"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/remark"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/vietqr"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/vnpay"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

// 免费订单的结算凭证
const freeSettlementRef = "FREE"

// QRUploader 可选的二维码图片托管，由 oss.Client 实现
type QRUploader interface {
	UploadQRCode(orderID string, png []byte) (string, error)
}

type OrderService struct {
	orderRepo    *repository.OrderRepository
	planRepo     *repository.PlanRepository
	userRepo     *repository.UserRepository
	entitlements *EntitlementService
	signer       *vnpay.Signer
	uploader     QRUploader
	notifier     *notify.Dispatcher
	clock        clock.Clock
	cfg          *config.Config
	logger       *slog.Logger
}

func NewOrderService(
	orderRepo *repository.OrderRepository,
	planRepo *repository.PlanRepository,
	userRepo *repository.UserRepository,
	entitlements *EntitlementService,
	signer *vnpay.Signer,
	uploader QRUploader,
	notifier *notify.Dispatcher,
	clk clock.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *OrderService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		orderRepo:    orderRepo,
		planRepo:     planRepo,
		userRepo:     userRepo,
		entitlements: entitlements,
		signer:       signer,
		uploader:     uploader,
		notifier:     notifier,
		clock:        clk,
		cfg:          cfg,
		logger:       logger,
	}
}

// CreateOrder 创建待支付订单；免费套餐直接结算并发放
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req *dto.CreateOrderRequest, clientIP string) (*dto.CreateOrderResponse, error) {
	plan, err := s.planRepo.GetByID(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}

	duration, unit, multiplier, err := resolveDuration(plan, req.Duration, model.DurationUnit(req.DurationUnit))
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	st := user.Entitlements()
	if plan.Kind == model.PlanKindTrial && st.HasTrial() {
		return nil, ErrTrialUsed
	}
	if req.IsRenewal {
		if _, ok := st.LatestOfPlan(plan.ID); !ok {
			return nil, ErrRenewalWithoutPlan
		}
	}
	if err := validateMigration(plan, req.Migration); err != nil {
		return nil, err
	}

	method := model.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = model.PaymentMethodBankTransfer
	}

	planID := plan.ID
	order := &model.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		Total:         plan.Price * multiplier,
		PaymentStatus: model.PaymentUnpaid,
		PaymentMethod: method,
		PlanID:        &planID,
		PlanName:      plan.Name,
		Duration:      duration,
		DurationUnit:  unit,
		IsRenewal:     req.IsRenewal,
		Migration:     datatypes.NewJSONType(req.Migration),
		CreatedAt:     s.clock.Now(),
	}
	order.PaymentRemark = remark.Build(s.cfg.Payment.Bank.RemarkPrefix, order.ID)

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("order created",
		"order_id", order.ID, "user_id", userID, "plan", plan.Name, "total", order.Total, "method", method)

	resp := s.buildResponse(order, plan)

	if order.Total == 0 {
		if _, err := s.Settle(ctx, order.ID, 0, freeSettlementRef); err != nil {
			return nil, err
		}
		if _, err := s.entitlements.Apply(ctx, order.ID); err != nil {
			return nil, err
		}
		resp.PaymentStatus = string(model.PaymentPaid)
		return resp, nil
	}

	s.attachQR(order, resp)
	if method == model.PaymentMethodVNPay {
		resp.PaymentURL = s.BuildVNPayURL(order, clientIP)
	}

	s.notifier.Dispatch(notify.Event{
		Type:       notify.EventOrderCreated,
		UserID:     userID,
		OrderID:    order.ID,
		PlanName:   plan.Name,
		Amount:     order.Total,
		OccurredAt: order.CreatedAt,
	})
	return resp, nil
}

// resolveDuration 购买时长必须与套餐同一单位族（天 / 月年），且为套餐时长的正整数倍
func resolveDuration(plan *model.PackagePlan, duration int, unit model.DurationUnit) (int, model.DurationUnit, int64, error) {
	if plan.Duration <= 0 {
		if duration > 0 {
			return 0, "", 0, ErrInvalidDuration
		}
		return 0, plan.DurationUnit, 1, nil
	}
	if duration <= 0 {
		return plan.Duration, plan.DurationUnit, 1, nil
	}
	if unit == "" {
		unit = plan.DurationUnit
	}

	planBase, planFamily := baseUnits(plan.Duration, plan.DurationUnit)
	reqBase, reqFamily := baseUnits(duration, unit)
	if planFamily != reqFamily || planBase <= 0 || reqBase%planBase != 0 {
		return 0, "", 0, ErrInvalidDuration
	}
	return duration, unit, int64(reqBase / planBase), nil
}

func baseUnits(n int, unit model.DurationUnit) (int, model.DurationUnit) {
	switch unit {
	case model.DurationYear:
		return n * 12, model.DurationMonth
	case model.DurationMonth:
		return n, model.DurationMonth
	default:
		return n, model.DurationDay
	}
}

func validateMigration(plan *model.PackagePlan, m *model.MigrationPayload) error {
	if m == nil {
		return nil
	}
	allowed := make(map[string]bool)
	for _, q := range plan.QuotaList() {
		allowed[q.ListingType] = true
	}
	for _, sel := range m.SelectedProperties {
		if !allowed[sel.ListingType] {
			return fmt.Errorf("listing %d type %q: %w", sel.PropertyID, sel.ListingType, ErrInvalidMigration)
		}
	}
	return nil
}

func (s *OrderService) transfer(order *model.Order) vietqr.Transfer {
	bank := s.cfg.Payment.Bank
	return vietqr.Transfer{
		BankBIN:       bank.BankBIN,
		AccountNumber: bank.AccountNumber,
		AccountName:   bank.AccountName,
		Amount:        order.Total,
		Remark:        order.PaymentRemark,
	}
}

func (s *OrderService) buildResponse(order *model.Order, plan *model.PackagePlan) *dto.CreateOrderResponse {
	bank := s.cfg.Payment.Bank
	return &dto.CreateOrderResponse{
		OrderID:       order.ID,
		Amount:        order.Total,
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		Remark:        order.PaymentRemark,
		BankAccount: dto.BankAccountInfo{
			BankBIN:       bank.BankBIN,
			BankName:      bank.BankName,
			AccountNumber: bank.AccountNumber,
			AccountName:   bank.AccountName,
		},
		Plan: dto.PlanSummary{
			ID:           plan.ID,
			Name:         plan.Name,
			Kind:         string(plan.Kind),
			Duration:     order.Duration,
			DurationUnit: string(order.DurationUnit),
		},
		ExpiresAt: order.CreatedAt.Add(s.cfg.Order.AutoCancelAfter).Format(time.RFC3339),
	}
}

// attachQR 生成 VietQR 内容与图片地址；配置了 OSS 时改用自托管图片
func (s *OrderService) attachQR(order *model.Order, resp *dto.CreateOrderResponse) {
	t := s.transfer(order)
	payload, err := vietqr.Payload(t)
	if err != nil {
		s.logger.Warn("build vietqr payload failed", "order_id", order.ID, "error", err)
		return
	}
	resp.QRPayload = payload
	resp.QRURL = vietqr.ImageURL(t, s.cfg.Payment.Bank.QRTemplate)

	if s.uploader == nil {
		return
	}
	png, err := vietqr.PNG(payload, 0)
	if err != nil {
		s.logger.Warn("render qr failed", "order_id", order.ID, "error", err)
		return
	}
	hosted, err := s.uploader.UploadQRCode(order.ID, png)
	if err != nil {
		s.logger.Warn("upload qr failed", "order_id", order.ID, "error", err)
		return
	}
	resp.QRURL = hosted
}

// BuildVNPayURL 生成带签名的 VNPay 支付页地址，未配置商户时返回空串
func (s *OrderService) BuildVNPayURL(order *model.Order, clientIP string) string {
	if s.signer == nil {
		return ""
	}
	vc := s.cfg.Payment.VNPay
	created := order.CreatedAt
	if created.IsZero() {
		created = s.clock.Now()
	}
	expire := time.Duration(vc.ExpireMinutes) * time.Minute
	if expire <= 0 {
		expire = s.cfg.Order.AutoCancelAfter
	}
	return s.signer.PaymentURL(vnpay.PaymentRequest{
		OrderID:   order.ID,
		Amount:    order.Total,
		OrderInfo: order.PaymentRemark,
		ClientIP:  clientIP,
		ReturnURL: vc.ReturnURL,
		Locale:    vc.Locale,
		CreatedAt: created,
		ExpireAt:  created.Add(expire),
	})
}

// Settle 结算唯一入口：单条条件更新，重复调用只有第一次返回 true
func (s *OrderService) Settle(ctx context.Context, orderID string, amount int64, ref string) (bool, error) {
	now := s.clock.Now()
	ok, err := s.orderRepo.Settle(ctx, orderID, amount, ref, now)
	if err != nil {
		return false, fmt.Errorf("settle order %s: %w", orderID, err)
	}
	if !ok {
		return false, nil
	}

	s.logger.Info("order settled", "order_id", orderID, "amount", amount, "ref", ref)
	if order, err := s.orderRepo.GetByID(ctx, orderID); err == nil {
		s.notifier.Dispatch(notify.Event{
			Type:       notify.EventOrderPaid,
			UserID:     order.UserID,
			OrderID:    order.ID,
			PlanName:   order.PlanName,
			Amount:     amount,
			OccurredAt: now,
		})
	}
	return true, nil
}

// CancelIfUnpaid 仅取消仍待支付的订单，不触碰用户套餐
func (s *OrderService) CancelIfUnpaid(ctx context.Context, orderID, reason string) (bool, error) {
	now := s.clock.Now()
	ok, err := s.orderRepo.CancelIfUnpaid(ctx, orderID, reason, now)
	if err != nil {
		return false, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if !ok {
		return false, nil
	}

	s.logger.Info("order cancelled", "order_id", orderID, "reason", reason)
	if order, err := s.orderRepo.GetByID(ctx, orderID); err == nil {
		s.notifier.Dispatch(notify.Event{
			Type:       notify.EventOrderCancelled,
			UserID:     order.UserID,
			OrderID:    order.ID,
			PlanName:   order.PlanName,
			Message:    reason,
			OccurredAt: now,
		})
	}
	return true, nil
}

func (s *OrderService) GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.GetByIDAndUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID int64, page, pageSize int) ([]dto.OrderItem, int64, error) {
	orders, total, err := s.orderRepo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	items := make([]dto.OrderItem, 0, len(orders))
	for i := range orders {
		items = append(items, ToOrderItem(&orders[i]))
	}
	return items, total, nil
}

// QRCodePNG 按订单重新渲染转账二维码
func (s *OrderService) QRCodePNG(ctx context.Context, userID int64, orderID string) ([]byte, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	payload, err := vietqr.Payload(s.transfer(order))
	if err != nil {
		return nil, err
	}
	return vietqr.PNG(payload, 0)
}

func ToOrderItem(o *model.Order) dto.OrderItem {
	item := dto.OrderItem{
		ID:             o.ID,
		Total:          o.Total,
		PaymentStatus:  string(o.PaymentStatus),
		PaymentMethod:  string(o.PaymentMethod),
		PlanName:       o.PlanName,
		IsRenewal:      o.IsRenewal,
		PaymentRemark:  o.PaymentRemark,
		AmountReceived: o.AmountReceived,
		CancelReason:   o.CancelReason,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
	}
	if o.PaidAt != nil {
		item.PaidAt = o.PaidAt.Format(time.RFC3339)
	}
	if o.CancelledAt != nil {
		item.CancelledAt = o.CancelledAt.Format(time.RFC3339)
	}
	return item
}
