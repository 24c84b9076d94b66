package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/inferplane/inferplane/modules/batcher"
	"github.com/inferplane/inferplane/modules/queue"
)

type fakeWorker struct {
	id        int
	available atomic.Bool
	in        chan *batcher.Batch
}

func newFakeWorker(id int) *fakeWorker {
	w := &fakeWorker{id: id, in: make(chan *batcher.Batch, 1)}
	w.available.Store(true)
	return w
}

func (w *fakeWorker) ID() int                          { return w.id }
func (w *fakeWorker) Available() bool                  { return w.available.Load() }
func (w *fakeWorker) Input() chan<- *batcher.Batch      { return w.in }

func TestDispatchesToFirstAvailableWorker(t *testing.T) {
	busy := newFakeWorker(1)
	busy.available.Store(false)
	free := newFakeWorker(2)

	in := make(chan *batcher.Batch, 1)
	s := New(Config{RequeueBackoff: time.Millisecond}, []Worker{busy, free}, in)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	batch := &batcher.Batch{Requests: []*queue.QueuedRequest{{RequestID: "1", Handle: queue.NewCompletionHandle()}}}
	in <- batch

	select {
	case got := <-free.in:
		require.Same(t, batch, got)
	case <-time.After(time.Second):
		t.Fatal("batch was not dispatched to the free worker")
	}

	select {
	case <-busy.in:
		t.Fatal("batch must not be dispatched to the busy worker")
	default:
	}

	cancel()
	wg.Wait()
}

func TestRequeuesUntilWorkerFreesUp(t *testing.T) {
	w := newFakeWorker(1)
	w.available.Store(false)

	in := make(chan *batcher.Batch, 1)
	s := New(Config{RequeueBackoff: 5 * time.Millisecond}, []Worker{w}, in)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	batch := &batcher.Batch{Requests: []*queue.QueuedRequest{{RequestID: "1", Handle: queue.NewCompletionHandle()}}}
	in <- batch

	time.Sleep(20 * time.Millisecond)
	w.available.Store(true)

	select {
	case got := <-w.in:
		require.Same(t, batch, got)
	case <-time.After(time.Second):
		t.Fatal("batch was never dispatched after worker became available")
	}

	cancel()
	wg.Wait()
}

func TestBacklogDoesNotBlockLaterNewcomers(t *testing.T) {
	stuck := newFakeWorker(1)
	stuck.available.Store(false)
	free := newFakeWorker(2)
	free.available.Store(false)

	in := make(chan *batcher.Batch)
	s := New(Config{RequeueBackoff: 5 * time.Millisecond}, []Worker{stuck, free}, in)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	backlogged := &batcher.Batch{Requests: []*queue.QueuedRequest{{RequestID: "backlogged", Handle: queue.NewCompletionHandle()}}}
	in <- backlogged

	// Give the scheduler a moment to find no worker available and push
	// the first batch onto its backlog. Both workers are unavailable, so
	// a second, newly-arriving batch has nowhere to go either — if
	// dispatch blocked in a local retry loop for the first batch, this
	// send would never be read.
	time.Sleep(10 * time.Millisecond)

	newcomer := &batcher.Batch{Requests: []*queue.QueuedRequest{{RequestID: "newcomer", Handle: queue.NewCompletionHandle()}}}
	select {
	case in <- newcomer:
	case <-time.After(time.Second):
		t.Fatal("scheduler never read the newcomer batch off its input channel while the first batch was backlogged")
	}

	// Let the scheduler find no worker for the newcomer and backlog it
	// behind the first batch before a worker frees up.
	time.Sleep(10 * time.Millisecond)
	free.available.Store(true)

	// Both batches should now dispatch to the single worker in the order
	// they were queued: the backlogged one first, since it's retried in
	// backlog order, then the newcomer right behind it.
	select {
	case got := <-free.in:
		require.Same(t, backlogged, got, "the backlogged batch should dispatch before the newcomer once a worker frees up")
	case <-time.After(time.Second):
		t.Fatal("backlogged batch was never dispatched after a worker became available")
	}

	select {
	case got := <-free.in:
		require.Same(t, newcomer, got)
	case <-time.After(time.Second):
		t.Fatal("newcomer batch was never dispatched after a worker became available")
	}

	cancel()
	wg.Wait()
}

func TestShutdownAbandonsQueuedBatch(t *testing.T) {
	w := newFakeWorker(1)
	w.available.Store(false)

	in := make(chan *batcher.Batch, 1)
	s := New(Config{RequeueBackoff: 5 * time.Millisecond}, []Worker{w}, in)

	ctx, cancel := context.WithCancel(context.Background())
	handle := queue.NewCompletionHandle()
	batch := &batcher.Batch{Requests: []*queue.QueuedRequest{{RequestID: "1", Handle: handle}}}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	in <- batch
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	_, err := handle.Wait(waitCtx)
	require.ErrorIs(t, err, queue.ErrAbandoned)
}
