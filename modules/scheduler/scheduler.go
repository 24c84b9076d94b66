// Package scheduler implements a node's batch-to-worker dispatcher: a
// first-fit scan over the worker pool, requeuing at the tail of an
// internal backlog when none is free so a stuck batch can never
// head-of-line-block batches arriving after it. Scheduler.Run actively
// drains both its input channel and that backlog on context
// cancellation and completes every remaining batch's requests with
// queue.ErrAbandoned, so no CompletionHandle is ever left unsignalled —
// a naive shutdown that simply stops selecting on the input channel
// would otherwise leave the last in-flight batch hanging forever.
package scheduler

import (
	"context"
	"time"

	"github.com/go-kit/log/level"

	"github.com/inferplane/inferplane/modules/batcher"
	"github.com/inferplane/inferplane/modules/queue"
	"github.com/inferplane/inferplane/pkg/util/log"
)

// Worker is the subset of worker.Worker the scheduler depends on, kept
// small and interface-typed for testability without a real GPU backend.
type Worker interface {
	ID() int
	Available() bool
	Input() chan<- *batcher.Batch
}

// Scheduler assigns batches from an input channel to the first available
// worker, requeuing at the tail of an internal backlog when none is
// free. Run's select loop stays free to read newcomers off in while the
// backlog waits, so a backlogged batch preserves order relative to other
// backlogged batches but not relative to batches that arrive after it
// and find a worker free immediately.
type Scheduler struct {
	cfg     Config
	workers []Worker
	in      <-chan *batcher.Batch
	backlog []*batcher.Batch
}

// New builds a Scheduler dispatching batches read from in across workers.
func New(cfg Config, workers []Worker, in <-chan *batcher.Batch) *Scheduler {
	return &Scheduler{cfg: cfg, workers: workers, in: in}
}

// Run drives the dispatch loop until ctx is cancelled. On cancellation,
// any batch still sitting in in or in the backlog is drained and
// completed with queue.ErrAbandoned.
func (s *Scheduler) Run(ctx context.Context) {
	level.Info(log.Logger).Log("msg", "scheduler started", "workers", len(s.workers))
	defer level.Info(log.Logger).Log("msg", "scheduler stopped")

	ticker := time.NewTicker(s.cfg.RequeueBackoff)
	defer ticker.Stop()

	for {
		select {
		case batch := <-s.in:
			if w := s.findAvailable(); w != nil {
				s.send(ctx, w, batch)
				continue
			}
			level.Warn(log.Logger).Log("msg", "no available worker, requeuing batch to backlog", "size", batch.Size())
			s.backlog = append(s.backlog, batch)
		case <-ticker.C:
			s.retryBacklog(ctx)
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

// retryBacklog walks the backlog in order, dispatching every batch that
// can currently find a worker and leaving the rest, in order, at the
// head of the backlog for the next tick.
func (s *Scheduler) retryBacklog(ctx context.Context) {
	if len(s.backlog) == 0 {
		return
	}
	remaining := s.backlog[:0]
	for _, batch := range s.backlog {
		w := s.findAvailable()
		if w == nil {
			remaining = append(remaining, batch)
			continue
		}
		s.send(ctx, w, batch)
	}
	s.backlog = remaining
}

// send hands batch to w, or abandons it if ctx is cancelled first.
func (s *Scheduler) send(ctx context.Context, w Worker, batch *batcher.Batch) {
	select {
	case w.Input() <- batch:
		level.Debug(log.Logger).Log("msg", "batch scheduled", "worker_id", w.ID(), "size", batch.Size())
	case <-ctx.Done():
		batch.CompleteAll(queue.ErrAbandoned)
	}
}

func (s *Scheduler) findAvailable() Worker {
	for _, w := range s.workers {
		if w.Available() {
			return w
		}
	}
	return nil
}

// drain abandons every batch left in the input channel and the backlog
// so no CompletionHandle is left unsignalled after shutdown.
func (s *Scheduler) drain() {
	for _, batch := range s.backlog {
		batch.CompleteAll(queue.ErrAbandoned)
	}
	s.backlog = nil

	for {
		select {
		case batch := <-s.in:
			batch.CompleteAll(queue.ErrAbandoned)
		default:
			return
		}
	}
}
