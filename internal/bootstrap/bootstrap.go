// Package bootstrap 进程启动时共用的装配：日志、环境变量、通知通道
package bootstrap

import (
	"io"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/email"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/pubsub"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/rabbitmq"
)

const (
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
	DriverNone     = "none"
)

// LoadEnv 本地开发时读取 .env，文件不存在时忽略
func LoadEnv() {
	_ = godotenv.Load("../.env", ".env")
}

// ConfigPath CONFIG_PATH 优先，默认 config.yaml
func ConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

// NewLogger release 模式输出 JSON，其余输出文本
func NewLogger(w io.Writer, mode string) *slog.Logger {
	if mode == "release" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// NewPublisher 按配置选择通知通道，返回的 close 用于退出时释放连接
func NewPublisher(cfg config.NotifyConfig, rdb *redis.Client, logger *slog.Logger) (notify.Publisher, func()) {
	switch cfg.Driver {
	case DriverRedis:
		if rdb == nil {
			logger.Warn("notify driver is redis but redis is not connected, events disabled")
			return notify.Nop{}, func() {}
		}
		return pubsub.NewPublisher(rdb, cfg.Channel), func() {}
	case DriverRabbitMQ:
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.Exchange)
		if err != nil {
			logger.Warn("rabbitmq unavailable, falling back to log only", "error", err)
			return &rabbitmq.Fallback{Logger: logger}, func() {}
		}
		return producer, producer.Close
	case DriverNone, "":
		return notify.Nop{}, func() {}
	default:
		logger.Warn("unknown notify driver, events disabled", "driver", cfg.Driver)
		return notify.Nop{}, func() {}
	}
}

// WithEmail 配置了 SMTP 时把邮件通道并入事件发布
func WithEmail(publisher notify.Publisher, cfg config.EmailConfig, users email.UserLookup, logger *slog.Logger) notify.Publisher {
	if cfg.SMTPHost == "" {
		return publisher
	}
	logger.Info("email notifications enabled", "smtp_host", cfg.SMTPHost)
	return notify.Fanout{publisher, email.NewNotifier(email.NewService(&cfg), users)}
}
