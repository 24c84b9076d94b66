// Command loadgen is a synthetic load generator for an inference gateway,
// grounded in cmd/tempo-vulture's ticker-driven generate loop and in the
// original ai-runtime project's scripts/smoke_test.py health-then-infer
// validation sequence. Unlike the tenant rate limiter (modules/ratelimit),
// which needs an exact trailing-window count, pacing synthetic traffic is
// exactly the approximate, bursty-tolerant workload golang.org/x/time/rate
// models well, so this is where that dependency lives.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	pkgmodel "github.com/inferplane/inferplane/pkg/model"
	"github.com/inferplane/inferplane/pkg/util/log"
)

func main() {
	gatewayURL := flag.String("gateway-url", "http://127.0.0.1:8080", "Base URL of the gateway to load.")
	apiKey := flag.String("api-key", "", "X-API-Key to authenticate requests with.")
	ratePerSec := flag.Float64("rate", 5, "Target requests per second.")
	prompt := flag.String("prompt", "hello world", "Prompt text sent with every request.")
	duration := flag.Duration("duration", 30*time.Second, "How long to run before exiting. 0 runs until interrupted.")
	flag.Parse()

	if err := log.InitLogger("info"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}

	if !healthCheck(*gatewayURL) {
		level.Error(log.Logger).Log("msg", "gateway health check failed", "gateway_url", *gatewayURL)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Limit(*ratePerSec), 1)
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var sent, succeeded, failed int64
	reportTicker := time.NewTicker(5 * time.Second)
	defer reportTicker.Stop()

	level.Info(log.Logger).Log("msg", "load generator started", "gateway_url", *gatewayURL, "rate", *ratePerSec)

	for {
		select {
		case <-ctx.Done():
			level.Info(log.Logger).Log("msg", "load generator stopped", "sent", sent, "succeeded", succeeded, "failed", failed)
			return
		case <-reportTicker.C:
			level.Info(log.Logger).Log("msg", "progress", "sent", atomic.LoadInt64(&sent), "succeeded", atomic.LoadInt64(&succeeded), "failed", atomic.LoadInt64(&failed))
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			continue
		}

		atomic.AddInt64(&sent, 1)
		go func() {
			if err := sendInfer(ctx, httpClient, *gatewayURL, *apiKey, *prompt); err != nil {
				atomic.AddInt64(&failed, 1)
				level.Warn(log.Logger).Log("msg", "request failed", "err", err)
				return
			}
			atomic.AddInt64(&succeeded, 1)
		}()
	}
}

func healthCheck(gatewayURL string) bool {
	resp, err := http.Get(gatewayURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func sendInfer(ctx context.Context, client *http.Client, gatewayURL, apiKey, prompt string) error {
	requestID := uuid.NewString()
	body, err := json.Marshal(pkgmodel.InferenceRequest{Prompt: prompt})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gatewayURL+"/infer", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway responded %s", resp.Status)
	}

	var parsed pkgmodel.InferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if parsed.Text == "" {
		return fmt.Errorf("empty response text")
	}
	if parsed.RequestID == "" {
		return fmt.Errorf("missing request_id")
	}
	return nil
}
