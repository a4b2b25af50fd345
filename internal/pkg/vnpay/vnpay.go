// Package vnpay 签名和校验 VNPay 托管支付页的跳转参数
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	Version         = "2.1.0"
	CommandPay      = "pay"
	CurrencyVND     = "VND"
	ResponseSuccess = "00"
	timeLayout      = "20060102150405"
)

var (
	ErrMissingSignature = errors.New("vnpay: missing secure hash")
	ErrInvalidSignature = errors.New("vnpay: invalid secure hash")
	ErrMissingOrder     = errors.New("vnpay: missing txn ref")
)

// 网关使用 GMT+7
var gatewayZone = time.FixedZone("GMT+7", 7*60*60)

type Signer struct {
	tmnCode    string
	hashSecret string
	payURL     string
}

func NewSigner(tmnCode, hashSecret, payURL string) *Signer {
	return &Signer{tmnCode: tmnCode, hashSecret: hashSecret, payURL: payURL}
}

// canonical 按 key 排序、剔除签名字段和空值后 url 编码拼接
func canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params.Get(k)))
	}
	return strings.Join(parts, "&")
}

func (s *Signer) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(s.hashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 校验回跳参数，失败时任何字段都不可信
func (s *Signer) Verify(params url.Values) error {
	got := strings.TrimSpace(params.Get("vnp_SecureHash"))
	if got == "" || s.hashSecret == "" {
		return ErrMissingSignature
	}
	decoded, err := hex.DecodeString(strings.ToLower(got))
	if err != nil {
		return ErrInvalidSignature
	}
	expected, _ := hex.DecodeString(s.sign(canonical(params)))
	if !hmac.Equal(decoded, expected) {
		return ErrInvalidSignature
	}
	return nil
}

type PaymentRequest struct {
	OrderID   string
	Amount    int64
	OrderInfo string
	ClientIP  string
	ReturnURL string
	Locale    string
	CreatedAt time.Time
	ExpireAt  time.Time
	BankCode  string
}

// PaymentURL 生成带签名的支付页地址，金额按网关要求乘以 100
func (s *Signer) PaymentURL(req PaymentRequest) string {
	params := url.Values{}
	params.Set("vnp_Version", Version)
	params.Set("vnp_Command", CommandPay)
	params.Set("vnp_TmnCode", s.tmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_CurrCode", CurrencyVND)
	params.Set("vnp_TxnRef", req.OrderID)
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_ReturnUrl", req.ReturnURL)
	params.Set("vnp_IpAddr", req.ClientIP)
	params.Set("vnp_CreateDate", FormatTime(req.CreatedAt))
	if !req.ExpireAt.IsZero() {
		params.Set("vnp_ExpireDate", FormatTime(req.ExpireAt))
	}
	locale := req.Locale
	if locale == "" {
		locale = "vn"
	}
	params.Set("vnp_Locale", locale)
	if req.BankCode != "" {
		params.Set("vnp_BankCode", req.BankCode)
	}

	query := canonical(params)
	return s.payURL + "?" + query + "&vnp_SecureHash=" + s.sign(query)
}

// Sign 对参数签名并写入 vnp_SecureHash
func (s *Signer) Sign(params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	out.Set("vnp_SecureHash", s.sign(canonical(out)))
	return out
}

type ReturnParams struct {
	OrderID       string
	Amount        int64
	ResponseCode  string
	TransactionNo string
	BankCode      string
	BankTranNo    string
	CardType      string
	OrderInfo     string
	PayDate       *time.Time
}

func (r ReturnParams) Success() bool {
	return r.ResponseCode == ResponseSuccess
}

// ParseReturn 解析已校验的回跳参数，vnp_Amount 除以 100 还原为 VND
func ParseReturn(params url.Values) (ReturnParams, error) {
	r := ReturnParams{
		OrderID:       params.Get("vnp_TxnRef"),
		ResponseCode:  params.Get("vnp_ResponseCode"),
		TransactionNo: params.Get("vnp_TransactionNo"),
		BankCode:      params.Get("vnp_BankCode"),
		BankTranNo:    params.Get("vnp_BankTranNo"),
		CardType:      params.Get("vnp_CardType"),
		OrderInfo:     params.Get("vnp_OrderInfo"),
	}
	if r.OrderID == "" {
		return r, ErrMissingOrder
	}
	if raw := params.Get("vnp_Amount"); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return r, fmt.Errorf("vnpay: parse amount: %w", err)
		}
		r.Amount = amount / 100
	}
	if raw := params.Get("vnp_PayDate"); raw != "" {
		if t, err := time.ParseInLocation(timeLayout, raw, gatewayZone); err == nil {
			utc := t.UTC()
			r.PayDate = &utc
		}
	}
	return r, nil
}

func FormatTime(t time.Time) string {
	return t.In(gatewayZone).Format(timeLayout)
}
