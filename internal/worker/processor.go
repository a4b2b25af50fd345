// Package worker 消费套餐发放重试队列
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/queue"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

const (
	defaultMaxAttempts = 5
	popTimeout         = 5 * time.Second
)

// Source 重试任务来源，由 queue.Queue 实现
type Source interface {
	Push(ctx context.Context, msg *queue.ApplyMessage) error
	Pop(ctx context.Context, timeout time.Duration) (*queue.ApplyMessage, error)
}

// Applier 发放套餐，由 service.EntitlementService 实现
type Applier interface {
	Apply(ctx context.Context, orderID string) (*model.EntitlementInstance, error)
}

// Processor 任务处理器
type Processor struct {
	source      Source
	applier     Applier
	maxAttempts int
	backoff     func(attempt int) time.Duration
	logger      *slog.Logger
}

// NewProcessor 创建任务处理器
func NewProcessor(source Source, applier Applier, maxAttempts int, logger *slog.Logger) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		source:      source,
		applier:     applier,
		maxAttempts: maxAttempts,
		backoff:     exponentialBackoff,
		logger:      logger,
	}
}

// exponentialBackoff 1s, 2s, 4s ... 上限 1 分钟
func exponentialBackoff(attempt int) time.Duration {
	d := time.Second << attempt
	if d <= 0 || d > time.Minute {
		return time.Minute
	}
	return d
}

// Process 执行一次发放；可重试的失败会在退避后重新入队，超过次数则放弃交给定时补偿
func (p *Processor) Process(ctx context.Context, msg *queue.ApplyMessage) error {
	inst, err := p.applier.Apply(ctx, msg.OrderID)
	if err == nil {
		p.logger.Info("entitlement applied by retry",
			"order_id", msg.OrderID, "instance_id", inst.InstanceID, "attempt", msg.Attempt+1)
		return nil
	}

	if service.Permanent(err) {
		p.logger.Warn("entitlement retry dropped", "order_id", msg.OrderID, "error", err)
		return nil
	}

	next := msg.Attempt + 1
	if next >= p.maxAttempts {
		p.logger.Error("entitlement retry exhausted", "order_id", msg.OrderID, "attempts", next, "error", err)
		return err
	}

	select {
	case <-ctx.Done():
	case <-time.After(p.backoff(msg.Attempt)):
	}
	retry := &queue.ApplyMessage{OrderID: msg.OrderID, Attempt: next, Reason: err.Error(), EnqueuedAt: msg.EnqueuedAt}
	if pushErr := p.source.Push(context.WithoutCancel(ctx), retry); pushErr != nil {
		return fmt.Errorf("requeue order %s: %w", msg.OrderID, pushErr)
	}
	return err
}

// Run 启动 workers 个消费协程，ctx 结束后等待全部退出
func (p *Processor) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.loop(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (p *Processor) loop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("apply worker shutting down", "worker", workerID)
			return
		}

		msg, err := p.source.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("pop apply job failed", "worker", workerID, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		if err := p.Process(ctx, msg); err != nil {
			p.logger.Warn("apply job failed", "worker", workerID, "order_id", msg.OrderID, "attempt", msg.Attempt, "error", err)
		}
	}
}
