package oss

import (
	"bytes"
	"fmt"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qhuy1504/smart-tro-server/config"
)

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// QRCodeKey 订单二维码的 object key
func QRCodeKey(orderID string) string {
	return fmt.Sprintf("payments/qr/%s.png", orderID)
}

// UploadQRCode 上传订单转账二维码，同一订单覆盖写入
func (c *Client) UploadQRCode(orderID string, png []byte) (string, error) {
	objectKey := QRCodeKey(orderID)

	err := c.bucket.PutObject(objectKey, bytes.NewReader(png), oss.ContentType("image/png"))
	if err != nil {
		return "", fmt.Errorf("failed to upload qr code: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// Delete 删除文件
func (c *Client) Delete(objectKey string) error {
	err := c.bucket.DeleteObject(objectKey)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetURL 获取文件访问 URL
func (c *Client) GetURL(objectKey string) string {
	return buildURL(c.cdnDomain, c.bucketName, c.client.Config.Endpoint, objectKey)
}

func buildURL(cdnDomain, bucketName, endpoint, objectKey string) string {
	if cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", bucketName, endpoint, objectKey)
}
