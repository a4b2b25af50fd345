// Package notify 把状态变更事件交给外部通知服务，调用方从不等待结果
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventOrderCreated     EventType = "order.created"
	EventOrderPaid        EventType = "order.paid"
	EventOrderCancelled   EventType = "order.cancelled"
	EventPaymentFailed    EventType = "payment.failed"
	EventPackageActivated EventType = "package.activated"
	EventPackageExpired   EventType = "package.expired"
	EventRoleChanged      EventType = "user.role_changed"
)

type Event struct {
	Type       EventType `json:"type"`
	UserID     int64     `json:"user_id"`
	OrderID    string    `json:"order_id,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	PlanName   string    `json:"plan_name,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop 未配置通知通道时使用
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Dispatcher 异步投递，失败只记录日志
type Dispatcher struct {
	pub     Publisher
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(pub Publisher, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if pub == nil {
		pub = Nop{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{pub: pub, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.pub.Publish(ctx, event); err != nil {
			d.logger.Warn("notify publish failed",
				"type", event.Type, "user_id", event.UserID, "order_id", event.OrderID, "error", err)
		}
	}()
}

// Wait 等待已发出的投递结束，用于优雅退出
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Fanout 依次投递给多个通道，返回所有失败
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
