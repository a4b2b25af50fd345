package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/model/dto"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/clock"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/remark"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/vnpay"
	"github.com/qhuy1504/smart-tro-server/internal/repository"
)

const (
	transferIn  = "in"
	transferOut = "out"

	bankDateLayout = "2006-01-02 15:04:05"

	VNPayStatusSuccess  = "success"
	VNPayStatusFailed   = "failed"
	VNPayStatusNotFound = "not_found"
)

// 银行推送的时间为越南本地时间
var bankZone = time.FixedZone("ICT", 7*60*60)

type PaymentService struct {
	orders       *OrderService
	entitlements *EntitlementService
	orderRepo    *repository.OrderRepository
	txRepo       *repository.TransactionRepository
	signer       *vnpay.Signer
	notifier     *notify.Dispatcher
	clock        clock.Clock
	cfg          config.PaymentConfig
	retry        ApplyRetrier
	logger       *slog.Logger
}

func NewPaymentService(
	orders *OrderService,
	entitlements *EntitlementService,
	orderRepo *repository.OrderRepository,
	txRepo *repository.TransactionRepository,
	signer *vnpay.Signer,
	notifier *notify.Dispatcher,
	clk clock.Clock,
	cfg config.PaymentConfig,
	logger *slog.Logger,
) *PaymentService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		orders:       orders,
		entitlements: entitlements,
		orderRepo:    orderRepo,
		txRepo:       txRepo,
		signer:       signer,
		notifier:     notifier,
		clock:        clk,
		cfg:          cfg,
		logger:       logger,
	}
}

// VerifyWebhookKey 校验 "Authorization: Apikey <key>"，未配置密钥时放行
func (s *PaymentService) VerifyWebhookKey(header string) bool {
	expected := s.cfg.Bank.WebhookAPIKey
	if expected == "" {
		return true
	}
	const prefix = "apikey "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return false
	}
	got := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// HandleBankWebhook 处理银行到账通知。每条通知都会落库；任何情况都向银行返回成功，避免重试风暴
func (s *PaymentService) HandleBankWebhook(ctx context.Context, payload *dto.BankWebhookPayload, raw []byte) *dto.WebhookResult {
	tx := s.newBankTransaction(payload, raw)
	if err := s.txRepo.Create(ctx, tx); err != nil {
		s.logger.Error("record bank transaction failed", "reference", payload.ReferenceCode, "error", err)
	}

	result, order := s.reconcileBank(ctx, payload)

	var orderID *string
	if order != nil {
		id := order.ID
		orderID = &id
	}
	if tx.ID != 0 {
		if err := s.txRepo.SetResult(ctx, tx.ID, orderID, result); err != nil {
			s.logger.Error("update transaction result failed", "transaction_id", tx.ID, "error", err)
		}
	}

	logAttrs := []any{"transaction_id", tx.ID, "reference", payload.ReferenceCode, "amount", payload.TransferAmount, "result", result}
	if order != nil {
		logAttrs = append(logAttrs, "order_id", order.ID)
	}
	s.logger.Info("bank webhook processed", logAttrs...)

	if result == model.TxResultSettled {
		s.applyOrRetry(ctx, order)
	}
	return &dto.WebhookResult{Success: true, Result: string(result)}
}

func (s *PaymentService) reconcileBank(ctx context.Context, payload *dto.BankWebhookPayload) (model.TransactionResult, *model.Order) {
	if strings.EqualFold(payload.TransferType, transferOut) {
		return model.TxResultIgnored, nil
	}

	candidates := remark.Extract(payload.Content, payload.Description, payload.Code)
	if len(candidates) == 0 {
		return model.TxResultUnmatched, nil
	}

	unpaid, err := s.orderRepo.ListUnpaid(ctx)
	if err != nil {
		s.logger.Error("list unpaid orders failed", "error", err)
		return model.TxResultFailed, nil
	}
	order, ok := remark.Match(candidates, unpaid)
	if !ok {
		return s.classifyLate(ctx, candidates), nil
	}

	if payload.TransferAmount < order.Total {
		s.logger.Warn("insufficient transfer",
			"order_id", order.ID, "total", order.Total, "received", payload.TransferAmount)
		s.notifier.Dispatch(notify.Event{
			Type:       notify.EventPaymentFailed,
			UserID:     order.UserID,
			OrderID:    order.ID,
			Amount:     payload.TransferAmount,
			Message:    string(model.TxResultInsufficient),
			OccurredAt: s.clock.Now(),
		})
		return model.TxResultInsufficient, order
	}

	ref := payload.ReferenceCode
	if ref == "" {
		ref = strconv.FormatInt(payload.ID, 10)
	}
	settled, err := s.orders.Settle(ctx, order.ID, payload.TransferAmount, ref)
	if err != nil {
		s.logger.Error("settle order failed", "order_id", order.ID, "error", err)
		return model.TxResultFailed, order
	}
	if settled {
		return model.TxResultSettled, order
	}
	return s.classifyLost(ctx, order), order
}

// classifyLate 候选后缀不在待支付订单中：可能是重复通知，也可能是已取消订单的迟到转账
func (s *PaymentService) classifyLate(ctx context.Context, candidates []string) model.TransactionResult {
	for _, c := range candidates {
		orders, err := s.orderRepo.FindByRemarkSuffix(ctx, c)
		if err != nil {
			s.logger.Error("lookup order by remark failed", "suffix", c, "error", err)
			continue
		}
		for _, o := range orders {
			switch o.PaymentStatus {
			case model.PaymentPaid:
				return model.TxResultDuplicate
			case model.PaymentCancelled:
				s.logger.Warn("transfer for cancelled order, manual refund needed", "order_id", o.ID)
				return model.TxResultCancelled
			}
		}
	}
	return model.TxResultUnmatched
}

// classifyLost 结算条件更新未命中时，按订单最新状态归类
func (s *PaymentService) classifyLost(ctx context.Context, order *model.Order) model.TransactionResult {
	fresh, err := s.orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		return model.TxResultFailed
	}
	switch fresh.PaymentStatus {
	case model.PaymentPaid:
		return model.TxResultDuplicate
	case model.PaymentCancelled:
		return model.TxResultCancelled
	default:
		return model.TxResultFailed
	}
}

func (s *PaymentService) newBankTransaction(p *dto.BankWebhookPayload, raw []byte) *model.Transaction {
	tx := &model.Transaction{
		Gateway:       p.Gateway,
		AccountNumber: p.AccountNumber,
		SubAccount:    p.SubAccount,
		Content:       p.Content,
		TransferType:  p.TransferType,
		Accumulated:   p.Accumulated,
		Code:          p.Code,
		ReferenceCode: p.ReferenceCode,
		Result:        model.TxResultPending,
		RawPayload:    rawJSON(raw, p),
	}
	if p.ID != 0 {
		tx.ProviderID = strconv.FormatInt(p.ID, 10)
	}
	if strings.EqualFold(p.TransferType, transferOut) {
		tx.AmountOut = p.TransferAmount
	} else {
		tx.AmountIn = p.TransferAmount
	}
	if p.TransactionDate != "" {
		if t, err := time.ParseInLocation(bankDateLayout, p.TransactionDate, bankZone); err == nil {
			utc := t.UTC()
			tx.TransactionDate = &utc
		}
	}
	return tx
}

// HandleVNPayReturn 先验签，验签失败不修改任何状态。"00" 结算，其他响应码取消订单
func (s *PaymentService) HandleVNPayReturn(ctx context.Context, params url.Values) (*dto.VNPayReturnResult, error) {
	if s.signer == nil {
		return nil, ErrInvalidSignature
	}
	if err := s.signer.Verify(params); err != nil {
		s.logger.Warn("vnpay signature rejected",
			"security", true, "txn_ref", params.Get("vnp_TxnRef"), "error", err)
		return nil, ErrInvalidSignature
	}
	ret, err := vnpay.ParseReturn(params)
	if err != nil {
		s.logger.Warn("vnpay return invalid", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	result := &dto.VNPayReturnResult{OrderID: ret.OrderID, ResponseCode: ret.ResponseCode}

	tx := &model.Transaction{
		Gateway:         model.GatewayVNPay,
		TransactionDate: ret.PayDate,
		Content:         ret.OrderInfo,
		TransferType:    transferIn,
		AmountIn:        ret.Amount,
		Code:            ret.ResponseCode,
		ReferenceCode:   ret.BankTranNo,
		ProviderID:      ret.TransactionNo,
		Result:          model.TxResultPending,
		RawPayload:      rawJSON(nil, flatten(params)),
	}

	order, err := s.orderRepo.GetByID(ctx, ret.OrderID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("load vnpay order failed", "order_id", ret.OrderID, "error", err)
		}
		tx.Result = model.TxResultUnmatched
		s.recordTransaction(ctx, tx)
		result.Status = VNPayStatusNotFound
		return result, nil
	}
	orderID := order.ID
	tx.OrderID = &orderID

	if !ret.Success() {
		cancelled, err := s.orders.CancelIfUnpaid(ctx, order.ID, "vnpay_"+ret.ResponseCode)
		if err != nil {
			s.logger.Error("cancel vnpay order failed", "order_id", order.ID, "error", err)
		}
		tx.Result = model.TxResultFailed
		s.recordTransaction(ctx, tx)
		if cancelled {
			s.notifier.Dispatch(notify.Event{
				Type:       notify.EventPaymentFailed,
				UserID:     order.UserID,
				OrderID:    order.ID,
				Amount:     ret.Amount,
				Message:    ret.ResponseCode,
				OccurredAt: s.clock.Now(),
			})
		}
		result.Status = VNPayStatusFailed
		return result, nil
	}

	switch {
	case ret.Amount < order.Total:
		tx.Result = model.TxResultInsufficient
	default:
		settled, err := s.orders.Settle(ctx, order.ID, ret.Amount, model.GatewayVNPay+":"+ret.TransactionNo)
		switch {
		case err != nil:
			s.logger.Error("settle vnpay order failed", "order_id", order.ID, "error", err)
			tx.Result = model.TxResultFailed
		case settled:
			tx.Result = model.TxResultSettled
			result.Settled = true
		default:
			tx.Result = s.classifyLost(ctx, order)
		}
	}
	s.recordTransaction(ctx, tx)

	if result.Settled {
		s.applyOrRetry(ctx, order)
	}

	if tx.Result == model.TxResultSettled || tx.Result == model.TxResultDuplicate {
		result.Status = VNPayStatusSuccess
	} else {
		result.Status = VNPayStatusFailed
	}
	s.logger.Info("vnpay return processed", "order_id", order.ID, "code", ret.ResponseCode, "result", tx.Result)
	return result, nil
}

// RedirectURL 回跳处理后前端落地页地址
func (s *PaymentService) RedirectURL(status, orderID string) string {
	base := s.cfg.VNPay.FrontendURL
	q := url.Values{}
	q.Set("status", status)
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

func (s *PaymentService) recordTransaction(ctx context.Context, tx *model.Transaction) {
	if err := s.txRepo.Create(ctx, tx); err != nil {
		s.logger.Error("record transaction failed", "gateway", tx.Gateway, "provider_id", tx.ProviderID, "error", err)
	}
}

// rawJSON 原始报文不是合法 JSON 时改存解析后的结构
func rawJSON(raw []byte, fallback interface{}) datatypes.JSON {
	if len(raw) > 0 && json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	data, err := json.Marshal(fallback)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

func flatten(params url.Values) map[string]string {
	out := make(map[string]string, len(params))
	for k := range params {
		out[k] = params.Get(k)
	}
	return out
}
