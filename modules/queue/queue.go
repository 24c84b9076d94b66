// Package queue implements a node's bounded admission queue: a
// channel-backed FIFO paired with atomic completion-handle bookkeeping
// so every admitted request resolves exactly once.
package queue

import (
	"context"
	"errors"

	"go.uber.org/atomic"

	"github.com/inferplane/inferplane/pkg/model"
)

// ErrQueueFull is the admission-rejection error surfaced as 429 at the
// node's HTTP boundary.
var ErrQueueFull = errors.New("request queue full, backpressure applied")

// ErrAbandoned completes a handle whose owning pipeline shut down before
// the request could be processed. Every handle is always completed with
// either a result, an upstream error, or this.
var ErrAbandoned = errors.New("request abandoned: pipeline shutting down")

// Result is the outcome delivered through a CompletionHandle.
type Result struct {
	Response model.InferenceResponse
	Err      error
}

// CompletionHandle is QueuedRequest's single-shot result slot. It may be
// signalled exactly once, enforced by an atomic CAS on a "completed" flag.
type CompletionHandle struct {
	completed atomic.Bool
	resultCh  chan Result
}

// NewCompletionHandle returns an unfired handle.
func NewCompletionHandle() *CompletionHandle {
	return &CompletionHandle{resultCh: make(chan Result, 1)}
}

// Complete signals the handle with res. Returns false if the handle was
// already completed, in which case res is discarded.
func (h *CompletionHandle) Complete(res Result) bool {
	if !h.completed.CompareAndSwap(false, true) {
		return false
	}
	h.resultCh <- res
	return true
}

// Wait blocks for the handle's outcome or ctx cancellation.
func (h *CompletionHandle) Wait(ctx context.Context) (model.InferenceResponse, error) {
	select {
	case res := <-h.resultCh:
		return res.Response, res.Err
	case <-ctx.Done():
		return model.InferenceResponse{}, ctx.Err()
	}
}

// QueuedRequest is one admitted request: a prompt plus sampling params,
// its request_id, and its completion handle.
type QueuedRequest struct {
	Request   model.InferenceRequest
	RequestID string
	Handle    *CompletionHandle
}

// Queue is a fixed-capacity FIFO of QueuedRequest.
type Queue struct {
	ch       chan *QueuedRequest
	capacity int
}

// New builds a Queue with room for capacity admitted-but-unbatched
// requests.
func New(capacity int) *Queue {
	return &Queue{
		ch:       make(chan *QueuedRequest, capacity),
		capacity: capacity,
	}
}

// Put admits request under request_id and returns its completion handle
// immediately. If the queue is full, the returned handle is already
// completed with ErrQueueFull.
func (q *Queue) Put(request model.InferenceRequest, requestID string) *CompletionHandle {
	handle := NewCompletionHandle()
	qr := &QueuedRequest{Request: request, RequestID: requestID, Handle: handle}

	select {
	case q.ch <- qr:
	default:
		handle.Complete(Result{Err: ErrQueueFull})
	}
	return handle
}

// Get blocks until a request is available or ctx is done.
func (q *Queue) Get(ctx context.Context) (*QueuedRequest, bool) {
	select {
	case qr := <-q.ch:
		return qr, true
	case <-ctx.Done():
		return nil, false
	}
}

// Len reports the number of requests currently admitted but not yet
// dequeued by the batcher.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Capacity is the queue's fixed admission ceiling.
func (q *Queue) Capacity() int {
	return q.capacity
}
