// Package app wires a node's inference pipeline (orchestrator) and
// gateway registration client into one HTTP server.
package app

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inferplane/inferplane/modules/orchestrator"
	"github.com/inferplane/inferplane/modules/registryclient"
)

// Config is the node binary's root configuration.
type Config struct {
	HTTPListenAddress string        `yaml:"http_listen_address"`
	LogLevel          string        `yaml:"log_level"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`

	Orchestrator   orchestrator.Config   `yaml:"orchestrator"`
	RegistryClient registryclient.Config `yaml:"registry_client"`
}

// LoadYAMLFile overlays the YAML document at path onto c. Call it after
// RegisterFlagsAndApplyDefaults and before flag parsing, mirroring the
// gateway's config.file layering.
func (c *Config) LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// RegisterFlagsAndApplyDefaults registers every flag the node needs.
func (c *Config) RegisterFlagsAndApplyDefaults(f *flag.FlagSet) {
	f.StringVar(&c.HTTPListenAddress, "server.http-listen-address", ":9000", "HTTP server listen address.")
	f.StringVar(&c.LogLevel, "log.level", "info", "Logging level: debug, info, warn, error.")
	f.DurationVar(&c.RequestTimeout, "request-timeout", 60*time.Second, "Maximum time a single /infer call may wait for its completion handle.")

	c.Orchestrator.RegisterFlagsAndApplyDefaults("pipeline.", f)
	c.RegistryClient.RegisterFlagsAndApplyDefaults("registry-client.", f)
}

// ApplyEnvOverrides layers the node's environment variable overrides on
// top of whatever flags/defaults already populated c.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("USE_MOCK_MODEL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Orchestrator.UseMockModel = b
		}
	}
	if v := os.Getenv("BATCH_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.Batcher.MaxBatchSize = n
		}
	}
	if v := os.Getenv("BATCH_MAX_LATENCY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.Batcher.MaxBatchLatency = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MAX_IN_FLIGHT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.MaxInFlightRequests = n
		}
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		c.RegistryClient.GatewayURL = v
	}
	if v := os.Getenv("NODE_ID"); v != "" {
		c.RegistryClient.NodeID = v
	}
	if v := os.Getenv("NODE_MAX_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RegistryClient.MaxCapacity = n
		}
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL_SEC"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.RegistryClient.HeartbeatInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("NODE_URL"); v != "" {
		c.RegistryClient.NodeURL = v
	}
}
