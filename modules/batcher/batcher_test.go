package batcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/inferplane/inferplane/modules/queue"
	"github.com/inferplane/inferplane/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestBatcher(cfg Config) (*Batcher, *queue.Queue) {
	q := queue.New(16)
	return New(cfg, q, 16), q
}

func TestFlushesOnSizeTrigger(t *testing.T) {
	b, q := newTestBatcher(Config{MaxBatchSize: 3, MaxBatchLatency: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()

	q.Put(model.InferenceRequest{Prompt: "a"}, "1")
	q.Put(model.InferenceRequest{Prompt: "b"}, "2")
	q.Put(model.InferenceRequest{Prompt: "c"}, "3")

	select {
	case batch := <-b.Out():
		require.Equal(t, 3, batch.Size())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}

	cancel()
	wg.Wait()
}

func TestFlushesOnLatencyTrigger(t *testing.T) {
	b, q := newTestBatcher(Config{MaxBatchSize: 10, MaxBatchLatency: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()

	q.Put(model.InferenceRequest{Prompt: "a"}, "1")

	select {
	case batch := <-b.Out():
		require.Equal(t, 1, batch.Size())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}

	cancel()
	wg.Wait()
}

func TestShutdownFlushesPartialBatch(t *testing.T) {
	b, q := newTestBatcher(Config{MaxBatchSize: 10, MaxBatchLatency: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()

	handle := q.Put(model.InferenceRequest{Prompt: "a"}, "1")
	time.Sleep(20 * time.Millisecond) // let the batcher pick it up before we cancel
	cancel()
	wg.Wait()

	select {
	case batch := <-b.Out():
		require.Equal(t, 1, batch.Size())
	default:
		waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
		defer waitCancel()
		_, err := handle.Wait(waitCtx)
		require.ErrorIs(t, err, queue.ErrAbandoned)
	}
}

func TestCompleteAllSignalsEveryHandle(t *testing.T) {
	q1 := queue.NewCompletionHandle()
	q2 := queue.NewCompletionHandle()
	batch := &Batch{Requests: []*queue.QueuedRequest{
		{RequestID: "1", Handle: q1},
		{RequestID: "2", Handle: q2},
	}}

	batch.CompleteAll(queue.ErrAbandoned)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err1 := q1.Wait(ctx)
	_, err2 := q2.Wait(ctx)
	require.ErrorIs(t, err1, queue.ErrAbandoned)
	require.ErrorIs(t, err2, queue.ErrAbandoned)
}
