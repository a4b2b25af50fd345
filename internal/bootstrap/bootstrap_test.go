package bootstrap

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/pubsub"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/rabbitmq"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "release").Info("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	NewLogger(&buf, "debug").Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yaml", ConfigPath())

	t.Setenv("CONFIG_PATH", "/etc/smarttro/config.yaml")
	assert.Equal(t, "/etc/smarttro/config.yaml", ConfigPath())
}

func TestNewPublisher_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	pub, closeFn := NewPublisher(config.NotifyConfig{Driver: DriverRedis, Channel: "events"}, rdb, discard())
	defer closeFn()
	require.IsType(t, &pubsub.Publisher{}, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	got := make(chan *notify.Event, 1)
	go func() {
		_ = pubsub.NewSubscriber(rdb, "events").Subscribe(ctx, func(e *notify.Event) {
			select {
			case got <- e:
			default:
			}
		})
	}()

	require.Eventually(t, func() bool {
		return pub.Publish(ctx, notify.Event{Type: notify.EventOrderPaid, UserID: 3}) == nil && len(got) > 0
	}, 2*time.Second, 50*time.Millisecond)
	e := <-got
	assert.Equal(t, notify.EventOrderPaid, e.Type)
}

func TestNewPublisher_Fallbacks(t *testing.T) {
	pub, _ := NewPublisher(config.NotifyConfig{Driver: DriverRedis}, nil, discard())
	assert.IsType(t, notify.Nop{}, pub)

	pub, _ = NewPublisher(config.NotifyConfig{Driver: DriverRabbitMQ, RabbitMQURL: "http://not-amqp"}, nil, discard())
	assert.IsType(t, &rabbitmq.Fallback{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), notify.Event{Type: notify.EventOrderPaid}))

	pub, _ = NewPublisher(config.NotifyConfig{Driver: "kafka"}, nil, discard())
	assert.IsType(t, notify.Nop{}, pub)

	pub, _ = NewPublisher(config.NotifyConfig{}, nil, discard())
	assert.IsType(t, notify.Nop{}, pub)
}

type noUsers struct{}

func (noUsers) GetByID(context.Context, int64) (*model.User, error) { return &model.User{}, nil }

func TestWithEmail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := notify.Nop{}

	assert.Equal(t, notify.Publisher(base), WithEmail(base, config.EmailConfig{}, noUsers{}, logger))

	pub := WithEmail(base, config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587}, noUsers{}, logger)
	fanout, ok := pub.(notify.Fanout)
	require.True(t, ok)
	assert.Len(t, fanout, 2)
	// 用户没有邮箱，不会真的连接 SMTP
	assert.NoError(t, pub.Publish(context.Background(), notify.Event{Type: notify.EventOrderPaid, UserID: 1}))
}
