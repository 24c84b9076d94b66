// Package orchestrator wires a node's inference pipeline together: the
// admission queue, dynamic batcher, scheduler, and GPU worker pool, each
// driven as its own goroutine bound to a shared shutdown context.
//
// Go has no portable in-process equivalent of torch.cuda.device_count();
// GPUCount is instead an explicit operator-supplied count (0 meaning
// "auto", which this package resolves to 1).
package orchestrator

import (
	"context"
	"sync"

	"github.com/go-kit/log/level"

	"github.com/inferplane/inferplane/modules/batcher"
	"github.com/inferplane/inferplane/modules/model"
	"github.com/inferplane/inferplane/modules/queue"
	"github.com/inferplane/inferplane/modules/scheduler"
	"github.com/inferplane/inferplane/modules/worker"
	"github.com/inferplane/inferplane/pkg/util/log"
)

// Pipeline owns the node's full request path: admission queue, dynamic
// batcher, scheduler and GPU worker pool.
type Pipeline struct {
	cfg     Config
	backend model.Backend

	queue   *queue.Queue
	batcher *batcher.Batcher
	workers []*worker.Worker
	sched   *scheduler.Scheduler

	mu          sync.Mutex
	initialized bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New builds an uninitialized Pipeline. Call Initialize before putting
// requests on Queue().
func New(cfg Config, backend model.Backend) *Pipeline {
	return &Pipeline{cfg: cfg, backend: backend}
}

func (p *Pipeline) gpuCount() int {
	if p.cfg.GPUCount > 0 {
		return p.cfg.GPUCount
	}
	return 1
}

// Initialize constructs the queue/batcher/scheduler/worker graph and
// starts each stage's goroutine. Idempotent: a second call is a no-op.
func (p *Pipeline) Initialize(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return
	}

	n := p.gpuCount()
	level.Info(log.Logger).Log("msg", "initializing inference pipeline", "gpu_count", n)

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.queue = queue.New(p.cfg.MaxInFlightRequests)
	p.batcher = batcher.New(p.cfg.Batcher, p.queue, p.cfg.MaxInFlightRequests)

	p.workers = make([]*worker.Worker, n)
	schedulerWorkers := make([]scheduler.Worker, n)
	for i := 0; i < n; i++ {
		w := worker.New(i, i, p.backend, 1)
		p.workers[i] = w
		schedulerWorkers[i] = w
	}

	p.sched = scheduler.New(p.cfg.Scheduler, schedulerWorkers, p.batcher.Out())

	p.wg.Add(2 + n)
	go func() {
		defer p.wg.Done()
		p.batcher.Run(runCtx)
	}()
	for _, w := range p.workers {
		w := w
		go func() {
			defer p.wg.Done()
			w.Run(runCtx)
		}()
	}
	go func() {
		defer p.wg.Done()
		p.sched.Run(runCtx)
	}()

	p.initialized = true
	level.Info(log.Logger).Log("msg", "inference pipeline initialized")
}

// Shutdown stops every stage and waits for their goroutines to exit.
// Idempotent: a second call is a no-op. Every in-flight batch and queued
// request is guaranteed to be completed (never abandoned silently) by the
// stages' own shutdown paths.
func (p *Pipeline) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return
	}
	level.Info(log.Logger).Log("msg", "shutting down inference pipeline")
	p.cancel()
	p.wg.Wait()
	p.initialized = false
	level.Info(log.Logger).Log("msg", "inference pipeline shut down")
}

// Queue exposes the pipeline's admission queue for the HTTP handler to
// call Put on directly.
func (p *Pipeline) Queue() *queue.Queue {
	return p.queue
}
