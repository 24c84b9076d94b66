// Command node runs a single inference node: the bounded request queue,
// dynamic batcher, scheduler and GPU worker pool, plus gateway
// registration and heartbeat.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"

	"github.com/inferplane/inferplane/cmd/node/app"
	"github.com/inferplane/inferplane/pkg/util/log"
)

func main() {
	cfg := &app.Config{}
	fs := flag.NewFlagSet("node", flag.ExitOnError)
	configFile := fs.String("config.file", "", "Optional YAML config file overlaid before flags and env vars are applied.")
	cfg.RegisterFlagsAndApplyDefaults(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing flags: %v\n", err)
		os.Exit(1)
	}
	if *configFile != "" {
		if err := cfg.LoadYAMLFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed loading config file: %v\n", err)
			os.Exit(1)
		}
		// Re-parse so any flags set on the command line still win over
		// values the config file just overlaid.
		if err := fs.Parse(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "failed parsing flags: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.ApplyEnvOverrides()

	if err := log.InitLogger(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}

	level.Info(log.Logger).Log(
		"msg", "starting node",
		"http_listen_address", cfg.HTTPListenAddress,
		"log_level", cfg.LogLevel,
		"request_timeout", cfg.RequestTimeout,
		"node_id", cfg.RegistryClient.NodeID,
		"node_url", cfg.RegistryClient.NodeURL,
		"gateway_url", cfg.RegistryClient.GatewayURL,
		"node_max_capacity", cfg.RegistryClient.MaxCapacity,
		"heartbeat_interval", cfg.RegistryClient.HeartbeatInterval,
		"use_mock_model", cfg.Orchestrator.UseMockModel,
		"batch_max_size", cfg.Orchestrator.Batcher.MaxBatchSize,
		"batch_max_latency", cfg.Orchestrator.Batcher.MaxBatchLatency,
		"max_in_flight_requests", cfg.Orchestrator.MaxInFlightRequests,
	)

	a, err := app.New(*cfg)
	if err != nil {
		level.Error(log.Logger).Log("msg", "failed to build node", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		level.Error(log.Logger).Log("msg", "node exited with error", "err", err)
		os.Exit(1)
	}
}
