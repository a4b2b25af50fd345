package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchResult 一次批量任务的统计
type BatchResult struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

// errSkipped 表示该条目无需处理，不计入失败
var errSkipped = errors.New("skipped")

// runBatch 并发处理每一项，单项失败或 panic 只记日志，不影响其他项
func runBatch[T any](ctx context.Context, logger *slog.Logger, name string, items []T, concurrency int, timeout time.Duration, fn func(context.Context, T) error) BatchResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	var succeeded, skipped, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			itemCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			err := safeCall(itemCtx, item, fn)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, errSkipped):
				skipped.Add(1)
			default:
				failed.Add(1)
				logger.Error("batch item failed", "job", name, "item", item, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{
		Total:     len(items),
		Succeeded: int(succeeded.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	if result.Total > 0 {
		logger.Info("batch finished", "job", name,
			"total", result.Total, "succeeded", result.Succeeded, "skipped", result.Skipped, "failed", result.Failed)
	}
	return result
}

func safeCall[T any](ctx context.Context, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
