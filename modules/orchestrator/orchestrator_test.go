package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inferplane/inferplane/modules/batcher"
	"github.com/inferplane/inferplane/modules/model"
	"github.com/inferplane/inferplane/modules/scheduler"
	pkgmodel "github.com/inferplane/inferplane/pkg/model"
)

func testConfig() Config {
	return Config{
		MaxInFlightRequests: 10,
		GPUCount:            2,
		Batcher:             batcher.Config{MaxBatchSize: 4, MaxBatchLatency: 20 * time.Millisecond},
		Scheduler:           scheduler.Config{RequeueBackoff: 5 * time.Millisecond},
	}
}

func TestPipelineProcessesEnqueuedRequest(t *testing.T) {
	p := New(testConfig(), &model.MockBackend{LatencyPerToken: time.Microsecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Initialize(ctx)
	defer p.Shutdown()

	handle := p.Queue().Put(pkgmodel.InferenceRequest{Prompt: "hello world", MaxTokens: intPtr(5), Temperature: floatPtr(0.3)}, "req-1")

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	resp, err := handle.Wait(waitCtx)
	require.NoError(t, err)
	require.Equal(t, "req-1", resp.RequestID)
}

func TestInitializeIsIdempotent(t *testing.T) {
	p := New(testConfig(), &model.MockBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Initialize(ctx)
	q1 := p.Queue()
	p.Initialize(ctx)
	require.Same(t, q1, p.Queue())

	p.Shutdown()
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := New(testConfig(), &model.MockBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Initialize(ctx)
	p.Shutdown()
	p.Shutdown()
}

func TestGPUCountZeroFallsBackToOne(t *testing.T) {
	cfg := testConfig()
	cfg.GPUCount = 0
	p := New(cfg, &model.MockBackend{})
	require.Equal(t, 1, p.gpuCount())
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
