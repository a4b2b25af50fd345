package remark

import (
	"regexp"
	"strings"

	"github.com/qhuy1504/smart-tro-server/internal/model"
)

// 银行会去掉空格、改大小写或在中间插入分隔符，只依赖 "DH" + 6 位十六进制
var suffixPattern = regexp.MustCompile(`(?i)DH[\s\-_.]*([0-9A-F]{6})(?:[^0-9A-Za-z]|$)`)

// Build 生成转账备注：<prefix> DH<订单号后 6 位>
func Build(prefix, orderID string) string {
	code := "DH" + model.OrderSuffix(orderID)
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return code
	}
	return prefix + " " + code
}

// Extract 从任意文本中提取候选后缀（大写、去重、按出现顺序）
func Extract(texts ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, text := range texts {
		for _, m := range suffixPattern.FindAllStringSubmatch(text, -1) {
			s := strings.ToUpper(m[1])
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Match 在待支付订单中查找后缀匹配的订单，按候选顺序取第一个
func Match(candidates []string, orders []model.Order) (*model.Order, bool) {
	for _, c := range candidates {
		for i := range orders {
			if orders[i].RemarkSuffix() == c {
				return &orders[i], true
			}
		}
	}
	return nil, false
}
