package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	OSS         OSSConfig         `mapstructure:"oss"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	Order       OrderConfig       `mapstructure:"order"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Email       EmailConfig       `mapstructure:"email"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type PaymentConfig struct {
	Bank  BankConfig  `mapstructure:"bank"`
	VNPay VNPayConfig `mapstructure:"vnpay"`
}

// BankConfig 收款银行账户，用于生成转账备注和 VietQR
type BankConfig struct {
	BankBIN       string `mapstructure:"bank_bin"`
	BankName      string `mapstructure:"bank_name"`
	AccountNumber string `mapstructure:"account_number"`
	AccountName   string `mapstructure:"account_name"`
	RemarkPrefix  string `mapstructure:"remark_prefix"`
	QRTemplate    string `mapstructure:"qr_template"`
	WebhookAPIKey string `mapstructure:"webhook_api_key"`
}

type VNPayConfig struct {
	TmnCode       string `mapstructure:"tmn_code"`
	HashSecret    string `mapstructure:"hash_secret"`
	PayURL        string `mapstructure:"pay_url"`
	ReturnURL     string `mapstructure:"return_url"`
	FrontendURL   string `mapstructure:"frontend_url"`
	Locale        string `mapstructure:"locale"`
	ExpireMinutes int    `mapstructure:"expire_minutes"`
}

type OrderConfig struct {
	AutoCancelAfter time.Duration `mapstructure:"auto_cancel_after"`
}

// SchedulerConfig cron 表达式由部署决定
type SchedulerConfig struct {
	ExpiryFineSpec   string        `mapstructure:"expiry_fine_spec"`
	ExpiryCoarseSpec string        `mapstructure:"expiry_coarse_spec"`
	AutoCancelSpec   string        `mapstructure:"auto_cancel_spec"`
	ReapplySpec      string        `mapstructure:"reapply_spec"`
	Concurrency      int           `mapstructure:"concurrency"`
	ItemTimeout      time.Duration `mapstructure:"item_timeout"`
	BatchSize        int           `mapstructure:"batch_size"`
}

type EntitlementConfig struct {
	TrialDays int `mapstructure:"trial_days"`
}

type NotifyConfig struct {
	Driver      string        `mapstructure:"driver"` // redis, rabbitmq, none
	Channel     string        `mapstructure:"channel"`
	RabbitMQURL string        `mapstructure:"rabbitmq_url"`
	Exchange    string        `mapstructure:"exchange"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EmailConfig 套餐事件邮件，SMTPHost 为空时不发送
type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// QueueConfig 套餐发放重试队列
type QueueConfig struct {
	ApplyQueue  string `mapstructure:"apply_queue"`
	Workers     int    `mapstructure:"workers"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("payment.bank.remark_prefix", "SMARTTRO")
	v.SetDefault("payment.bank.qr_template", "compact2")
	v.SetDefault("payment.vnpay.locale", "vn")
	v.SetDefault("payment.vnpay.expire_minutes", 15)
	v.SetDefault("order.auto_cancel_after", "15m")
	v.SetDefault("scheduler.expiry_fine_spec", "@every 1m")
	v.SetDefault("scheduler.expiry_coarse_spec", "0 3 * * *")
	v.SetDefault("scheduler.auto_cancel_spec", "@every 5m")
	v.SetDefault("scheduler.reapply_spec", "*/10 * * * *")
	v.SetDefault("scheduler.concurrency", 8)
	v.SetDefault("scheduler.item_timeout", "30s")
	v.SetDefault("scheduler.batch_size", 500)
	v.SetDefault("entitlement.trial_days", 7)
	v.SetDefault("notify.driver", "redis")
	v.SetDefault("notify.channel", "package_events")
	v.SetDefault("notify.exchange", "smarttro.events")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("queue.apply_queue", "entitlement_apply")
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("email.smtp_port", 587)
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
