// Package model defines a node's pluggable generation backend: a plain
// synchronous Generate call. A single-threaded event loop would need to
// hop a blocking call like this onto an executor thread to stay
// responsive; Go's worker goroutines can call Backend.Generate directly,
// since the runtime's M:N scheduler multiplexes blocking calls onto OS
// threads without needing an explicit thread-pool abstraction.
package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend generates text for a single prompt. Implementations must be
// safe for concurrent use by multiple worker goroutines, each calling
// Generate for a different request.
type Backend interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// MockBackend is a deterministic stand-in used when USE_MOCK_MODEL is
// set, and in every test that exercises the pipeline without a real
// model dependency. It echoes the prompt, truncated to maxTokens words,
// after a latency proportional to maxTokens to give batching and
// scheduling something to observe.
type MockBackend struct {
	// LatencyPerToken is charged per requested token; defaults to 1ms if
	// zero, matching the order of magnitude of a lightweight CPU model.
	LatencyPerToken time.Duration
}

// Generate implements Backend.
func (m *MockBackend) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	perToken := m.LatencyPerToken
	if perToken == 0 {
		perToken = time.Millisecond
	}

	select {
	case <-time.After(perToken * time.Duration(maxTokens)):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	words := strings.Fields(prompt)
	if len(words) > maxTokens {
		words = words[:maxTokens]
	}
	return fmt.Sprintf("%s [t=%.2f]", strings.Join(words, " "), temperature), nil
}
