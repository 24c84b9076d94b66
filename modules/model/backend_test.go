package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockBackendTruncatesToMaxTokens(t *testing.T) {
	b := &MockBackend{LatencyPerToken: time.Microsecond}
	out, err := b.Generate(context.Background(), "one two three four", 2, 0.5)
	require.NoError(t, err)
	require.Contains(t, out, "one two")
	require.NotContains(t, out, "three")
}

func TestMockBackendRespectsContextCancellation(t *testing.T) {
	b := &MockBackend{LatencyPerToken: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Generate(ctx, "hello", 100, 0.5)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
