// Package batcher implements the node's dynamic request batcher: it
// groups queued requests into a Batch once either a size or a latency
// trigger fires. The wait-for-next-item timeout is computed relative to
// the batch's CreatedAt (max_batch_latency − (now − created_at), floored
// at 0), not relative to the previous item's arrival — resetting the
// timeout on every new item would let a steady trickle of requests hold
// a batch open indefinitely, which defeats the emission latency bound
// the batch is supposed to guarantee.
package batcher

import (
	"context"
	"time"

	"github.com/go-kit/log/level"

	"github.com/inferplane/inferplane/modules/queue"
	"github.com/inferplane/inferplane/pkg/util/log"
)

// pollInterval bounds how long Batcher blocks on an empty queue while no
// batch is assembling, so it can observe context cancellation promptly.
const pollInterval = 100 * time.Millisecond

// Batch is an ordered group of requests assembled for one scheduler
// dispatch. Requests is never empty once emitted.
type Batch struct {
	Requests  []*queue.QueuedRequest
	CreatedAt time.Time
}

// Size reports the number of requests in the batch.
func (b *Batch) Size() int {
	return len(b.Requests)
}

// CompleteAll signals every request's completion handle with err. Used on
// shutdown to guarantee no handle is ever abandoned.
func (b *Batch) CompleteAll(err error) {
	for _, qr := range b.Requests {
		qr.Handle.Complete(queue.Result{Err: err})
	}
}

// Batcher pulls QueuedRequest from an input queue and emits Batch values
// on out, triggered by size or latency.
type Batcher struct {
	cfg Config
	in  *queue.Queue
	out chan *Batch
	now func() time.Time
}

// New builds a Batcher reading from in and writing completed batches to a
// channel of the given buffer size.
func New(cfg Config, in *queue.Queue, outBuffer int) *Batcher {
	return &Batcher{
		cfg: cfg,
		in:  in,
		out: make(chan *Batch, outBuffer),
		now: time.Now,
	}
}

// Out is the channel the scheduler consumes assembled batches from.
func (b *Batcher) Out() <-chan *Batch {
	return b.out
}

// Run drives the batch-assembly loop until ctx is cancelled. On
// cancellation, any partially-assembled batch is handed to the scheduler
// if the output channel has room, and otherwise completed with
// queue.ErrAbandoned, before Run returns.
func (b *Batcher) Run(ctx context.Context) {
	level.Info(log.Logger).Log("msg", "batcher started", "max_batch_size", b.cfg.MaxBatchSize, "max_batch_latency", b.cfg.MaxBatchLatency)
	defer level.Info(log.Logger).Log("msg", "batcher stopped")

	var current *Batch
	for {
		if ctx.Err() != nil {
			b.flushPartial(ctx, current)
			return
		}

		timeout := pollInterval
		if current != nil {
			remaining := b.cfg.MaxBatchLatency - b.now().Sub(current.CreatedAt)
			if remaining < 0 {
				remaining = 0
			}
			timeout = remaining
		}

		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		qr, ok := b.in.Get(waitCtx)
		cancel()

		if !ok {
			if ctx.Err() != nil {
				b.flushPartial(ctx, current)
				return
			}
			// Timed out waiting for the next item: flush whatever we
			// have assembled, or keep polling an empty queue.
			if current != nil {
				b.flush(ctx, current)
				current = nil
			}
			continue
		}

		if current == nil {
			current = &Batch{Requests: []*queue.QueuedRequest{qr}, CreatedAt: b.now()}
		} else {
			current.Requests = append(current.Requests, qr)
		}

		if current.Size() >= b.cfg.MaxBatchSize {
			b.flush(ctx, current)
			current = nil
		}
	}
}

func (b *Batcher) flush(ctx context.Context, batch *Batch) {
	if batch == nil || batch.Size() == 0 {
		return
	}
	select {
	case b.out <- batch:
		level.Debug(log.Logger).Log("msg", "batch flushed", "size", batch.Size())
	case <-ctx.Done():
		batch.CompleteAll(queue.ErrAbandoned)
	}
}

func (b *Batcher) flushPartial(ctx context.Context, batch *Batch) {
	if batch == nil || batch.Size() == 0 {
		return
	}
	// ctx is already cancelled; attempt a non-blocking handoff to the
	// scheduler before giving up and failing the batch outright.
	select {
	case b.out <- batch:
		level.Debug(log.Logger).Log("msg", "partial batch flushed on shutdown", "size", batch.Size())
	default:
		batch.CompleteAll(queue.ErrAbandoned)
	}
}
