// Command gateway runs the inference plane's gateway: tenant auth, rate
// limiting, node registry, load-aware routing, circuit breaking and
// request forwarding.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"

	"github.com/inferplane/inferplane/cmd/gateway/app"
	"github.com/inferplane/inferplane/pkg/util/log"
)

func main() {
	cfg := &app.Config{}
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
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

	apiKeysSet := "no"
	if cfg.APIKeys != "" {
		apiKeysSet = "yes"
	}
	level.Info(log.Logger).Log(
		"msg", "starting gateway",
		"http_listen_address", cfg.HTTPListenAddress,
		"log_level", cfg.LogLevel,
		"enable_streaming", cfg.EnableStreaming,
		"api_keys_configured", apiKeysSet,
		"registry.heartbeat_interval", cfg.Registry.HeartbeatInterval,
		"registry.eviction_timeout", cfg.Registry.EvictionTimeout,
		"breaker.failure_threshold", cfg.Breaker.FailureThreshold,
		"breaker.recovery_timeout", cfg.Breaker.RecoveryTimeout,
		"ratelimit.limit_per_minute", cfg.RateLimit.LimitPerMinute,
		"forwarder.gateway_timeout", cfg.Forwarder.GatewayTimeout,
		"forwarder.max_retries", cfg.Forwarder.MaxRetries,
	)

	a, err := app.New(*cfg)
	if err != nil {
		level.Error(log.Logger).Log("msg", "failed to build gateway", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		level.Error(log.Logger).Log("msg", "gateway exited with error", "err", err)
		os.Exit(1)
	}
}
