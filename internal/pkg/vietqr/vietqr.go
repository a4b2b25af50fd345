// Package vietqr 生成 NAPAS VietQR（EMVCo）转账二维码
package vietqr

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

const (
	napasGUID        = "A000000727"
	serviceToAccount = "QRIBFTTA"
	currencyVND      = "704"
	countryVN        = "VN"
	imageBaseURL     = "https://img.vietqr.io/image"
	defaultSize      = 320
)

var (
	ErrMissingAccount = errors.New("vietqr: bank BIN and account number are required")
	ErrEmptyPayload   = errors.New("vietqr: payload cannot be empty")
)

type Transfer struct {
	BankBIN       string
	AccountNumber string
	AccountName   string
	Amount        int64
	Remark        string
}

func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// Payload 构造 EMVCo 字符串，末尾附 CRC16
func Payload(t Transfer) (string, error) {
	if t.BankBIN == "" || t.AccountNumber == "" {
		return "", ErrMissingAccount
	}

	beneficiary := field("00", t.BankBIN) + field("01", t.AccountNumber)
	merchant := field("00", napasGUID) + field("01", beneficiary) + field("02", serviceToAccount)

	var b strings.Builder
	b.WriteString(field("00", "01"))
	if t.Amount > 0 {
		b.WriteString(field("01", "12"))
	} else {
		b.WriteString(field("01", "11"))
	}
	b.WriteString(field("38", merchant))
	b.WriteString(field("53", currencyVND))
	if t.Amount > 0 {
		b.WriteString(field("54", strconv.FormatInt(t.Amount, 10)))
	}
	b.WriteString(field("58", countryVN))
	if t.Remark != "" {
		b.WriteString(field("62", field("08", t.Remark)))
	}
	b.WriteString("6304")

	s := b.String()
	return s + fmt.Sprintf("%04X", CRC16(s)), nil
}

// CRC16 CRC-16/CCITT-FALSE
func CRC16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// ImageURL vietqr.io 托管的二维码图片地址
func ImageURL(t Transfer, template string) string {
	if template == "" {
		template = "compact2"
	}
	q := url.Values{}
	if t.Amount > 0 {
		q.Set("amount", strconv.FormatInt(t.Amount, 10))
	}
	if t.Remark != "" {
		q.Set("addInfo", t.Remark)
	}
	if t.AccountName != "" {
		q.Set("accountName", t.AccountName)
	}
	u := fmt.Sprintf("%s/%s-%s-%s.png", imageBaseURL, t.BankBIN, t.AccountNumber, template)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// PNG 本地渲染二维码图片
func PNG(payload string, size int) ([]byte, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrEmptyPayload
	}
	if size <= 0 {
		size = defaultSize
	}
	png, err := skipqrcode.Encode(payload, skipqrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("vietqr: encode png: %w", err)
	}
	return png, nil
}
