package oss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQRCodeKey(t *testing.T) {
	assert.Equal(t, "payments/qr/abc.png", QRCodeKey("abc"))
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/payments/qr/abc.png",
		buildURL("cdn.example.com", "bucket", "oss-cn-hangzhou.aliyuncs.com", "payments/qr/abc.png"))
	assert.Equal(t, "https://bucket.oss-cn-hangzhou.aliyuncs.com/payments/qr/abc.png",
		buildURL("", "bucket", "oss-cn-hangzhou.aliyuncs.com", "payments/qr/abc.png"))
}
