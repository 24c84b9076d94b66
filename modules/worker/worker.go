// Package worker implements a node's GPU worker: each Worker owns a
// dedicated goroutine and calls Backend.Generate synchronously and
// sequentially, one request at a time, within a batch. A constraint like
// "never call this on the cooperative scheduler" (meant for a
// single-threaded event loop) has no analogue here, since a blocking
// call inside one goroutine never stalls any other goroutine. A
// per-request failure is isolated: one request's generation error
// becomes that request's own error result and does not affect its batch
// siblings.
package worker

import (
	"context"

	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/inferplane/inferplane/modules/batcher"
	backend "github.com/inferplane/inferplane/modules/model"
	"github.com/inferplane/inferplane/modules/queue"
	pkgmodel "github.com/inferplane/inferplane/pkg/model"
	"github.com/inferplane/inferplane/pkg/util/log"
)

// Worker processes batches assigned to it by the scheduler, one request
// at a time, on its own goroutine.
type Worker struct {
	id        int
	gpuID     int
	backend   backend.Backend
	in        chan *batcher.Batch
	available atomic.Bool
}

// New builds a Worker bound to gpuID, backed by b. The worker is
// available for scheduling as soon as it is constructed.
func New(id, gpuID int, b backend.Backend, inBuffer int) *Worker {
	w := &Worker{
		id:      id,
		gpuID:   gpuID,
		backend: b,
		in:      make(chan *batcher.Batch, inBuffer),
	}
	w.available.Store(true)
	return w
}

// ID is the worker's index within the orchestrator's worker pool.
func (w *Worker) ID() int {
	return w.id
}

// Input is the channel the scheduler dispatches batches to.
func (w *Worker) Input() chan<- *batcher.Batch {
	return w.in
}

// Available reports whether the worker is idle and can accept a batch
// right now. Read by the scheduler's first-fit scan; it is a lock-free
// atomic load with no further synchronization, since a stale read only
// causes a benign retry.
func (w *Worker) Available() bool {
	return w.available.Load()
}

// Run drives the worker's processing loop until ctx is cancelled. On
// cancellation, any batches still sitting in the worker's input channel
// are drained and completed with queue.ErrAbandoned so no handle is ever
// left unsignalled.
func (w *Worker) Run(ctx context.Context) {
	level.Info(log.Logger).Log("msg", "worker started", "worker_id", w.id, "gpu_id", w.gpuID)
	defer level.Info(log.Logger).Log("msg", "worker stopped", "worker_id", w.id)

	for {
		if ctx.Err() != nil {
			w.drain()
			return
		}
		select {
		case batch := <-w.in:
			w.available.Store(false)
			w.processBatch(ctx, batch)
			w.available.Store(true)
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case batch := <-w.in:
			batch.CompleteAll(queue.ErrAbandoned)
		default:
			return
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, batch *batcher.Batch) {
	level.Debug(log.Logger).Log("msg", "processing batch", "worker_id", w.id, "size", batch.Size())

	for _, qr := range batch.Requests {
		maxTokens := pkgmodel.DefaultMaxTokens
		if qr.Request.MaxTokens != nil {
			maxTokens = *qr.Request.MaxTokens
		}
		temperature := pkgmodel.DefaultTemperature
		if qr.Request.Temperature != nil {
			temperature = *qr.Request.Temperature
		}

		text, err := w.backend.Generate(ctx, qr.Request.Prompt, maxTokens, temperature)
		if err != nil {
			level.Error(log.Logger).Log("msg", "generation error", "worker_id", w.id, "request_id", qr.RequestID, "err", err)
			qr.Handle.Complete(queue.Result{Err: err})
			continue
		}

		qr.Handle.Complete(queue.Result{Response: pkgmodel.InferenceResponse{
			APIVersion: pkgmodel.APIVersion,
			Text:       text,
			RequestID:  qr.RequestID,
		}})
	}
}
