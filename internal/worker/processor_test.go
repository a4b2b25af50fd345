package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/queue"
	"github.com/qhuy1504/smart-tro-server/internal/service"
)

type fakeApplier struct {
	mu    sync.Mutex
	calls map[string]int
	errs  []error
}

func (f *fakeApplier) Apply(_ context.Context, orderID string) (*model.EntitlementInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	n := f.calls[orderID]
	f.calls[orderID] = n + 1
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	return &model.EntitlementInstance{InstanceID: "inst-" + orderID, OrderID: orderID}, nil
}

func (f *fakeApplier) count(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[orderID]
}

func setupQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return queue.NewQueue(client, "test_apply")
}

func newTestProcessor(q Source, a Applier, maxAttempts int) *Processor {
	p := NewProcessor(q, a, maxAttempts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.backoff = func(int) time.Duration { return 0 }
	return p
}

func TestNewProcessor_Defaults(t *testing.T) {
	p := NewProcessor(nil, nil, 0, nil)
	assert.Equal(t, defaultMaxAttempts, p.maxAttempts)
	assert.NotNil(t, p.logger)
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, time.Second, exponentialBackoff(0))
	assert.Equal(t, 4*time.Second, exponentialBackoff(2))
	assert.Equal(t, time.Minute, exponentialBackoff(10))
	assert.Equal(t, time.Minute, exponentialBackoff(80))
}

func TestProcessor_Process_Success(t *testing.T) {
	q := setupQueue(t)
	applier := &fakeApplier{}
	p := newTestProcessor(q, applier, 3)

	require.NoError(t, p.Process(context.Background(), &queue.ApplyMessage{OrderID: "o1"}))
	assert.Equal(t, 1, applier.count("o1"))

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestProcessor_Process_RequeuesTransientFailure(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()
	applier := &fakeApplier{errs: []error{errors.New("deadlock found")}}
	p := newTestProcessor(q, applier, 3)

	err := p.Process(ctx, &queue.ApplyMessage{OrderID: "o1"})
	assert.Error(t, err)

	msg, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "o1", msg.OrderID)
	assert.Equal(t, 1, msg.Attempt)
	assert.Equal(t, "deadlock found", msg.Reason)

	require.NoError(t, p.Process(ctx, msg))
	assert.Equal(t, 2, applier.count("o1"))
}

func TestProcessor_Process_DropsPermanentFailure(t *testing.T) {
	q := setupQueue(t)
	applier := &fakeApplier{errs: []error{fmt.Errorf("apply order o1: %w", service.ErrTrialUsed)}}
	p := newTestProcessor(q, applier, 3)

	assert.NoError(t, p.Process(context.Background(), &queue.ApplyMessage{OrderID: "o1"}))

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestProcessor_Process_GivesUpAfterMaxAttempts(t *testing.T) {
	q := setupQueue(t)
	applier := &fakeApplier{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
	p := newTestProcessor(q, applier, 3)

	assert.Error(t, p.Process(context.Background(), &queue.ApplyMessage{OrderID: "o1", Attempt: 2}))

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestProcessor_Run(t *testing.T) {
	q := setupQueue(t)
	applier := &fakeApplier{errs: []error{errors.New("timeout")}}
	p := newTestProcessor(q, applier, 3)

	ctx, cancel := context.WithCancel(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, &queue.ApplyMessage{OrderID: id}))
	}

	done := make(chan struct{})
	go func() {
		p.Run(ctx, 2)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return applier.count("a") == 2 && applier.count("b") == 2 && applier.count("c") == 2
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(popTimeout + 2*time.Second):
		t.Fatal("workers did not stop")
	}
}
