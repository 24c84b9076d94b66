package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inferplane/inferplane/pkg/model"
)

func TestPutGetRoundTrip(t *testing.T) {
	q := New(2)
	handle := q.Put(model.InferenceRequest{Prompt: "hi"}, "req-1")

	qr, ok := q.Get(context.Background())
	require.True(t, ok)
	require.Equal(t, "req-1", qr.RequestID)
	require.Same(t, handle, qr.Handle)
}

func TestPutRejectsWhenFull(t *testing.T) {
	q := New(1)
	q.Put(model.InferenceRequest{Prompt: "a"}, "req-1")
	handle := q.Put(model.InferenceRequest{Prompt: "b"}, "req-2")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := handle.Wait(ctx)
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestGetUnblocksOnContextCancel(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Get(ctx)
	require.False(t, ok)
}

func TestCompletionHandleFiresOnce(t *testing.T) {
	h := NewCompletionHandle()
	require.True(t, h.Complete(Result{Response: model.InferenceResponse{Text: "first"}}))
	require.False(t, h.Complete(Result{Response: model.InferenceResponse{Text: "second"}}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := h.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", resp.Text)
}

func TestLenAndCapacity(t *testing.T) {
	q := New(3)
	require.Equal(t, 3, q.Capacity())
	require.Equal(t, 0, q.Len())

	q.Put(model.InferenceRequest{Prompt: "a"}, "req-1")
	require.Equal(t, 1, q.Len())
}
