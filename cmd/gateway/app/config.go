// Package app wires the gateway's collaborators (auth, rate limiter,
// router, circuit breaker, forwarder, registry) into one HTTP server.
package app

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inferplane/inferplane/modules/auth"
	"github.com/inferplane/inferplane/modules/breaker"
	"github.com/inferplane/inferplane/modules/forwarder"
	"github.com/inferplane/inferplane/modules/ratelimit"
	"github.com/inferplane/inferplane/modules/registry"
)

// Config is the gateway binary's root configuration. Fields carry yaml
// tags so an operator can lay down a base config file (-config.file) that
// flags and then environment variables overlay.
type Config struct {
	HTTPListenAddress string `yaml:"http_listen_address"`
	LogLevel          string `yaml:"log_level"`
	EnableStreaming   bool   `yaml:"enable_streaming"`
	APIKeys           string `yaml:"api_keys"`

	Registry  registry.Config  `yaml:"registry"`
	Breaker   breaker.Config   `yaml:"breaker"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Forwarder forwarder.Config `yaml:"forwarder"`
}

// LoadYAMLFile overlays the YAML document at path onto c. Call it after
// RegisterFlagsAndApplyDefaults and before flag parsing, so a config file
// supplies the base but the command line can still override it.
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

// RegisterFlagsAndApplyDefaults registers every flag the gateway needs,
// recursing into each component's own Config.
func (c *Config) RegisterFlagsAndApplyDefaults(f *flag.FlagSet) {
	f.StringVar(&c.HTTPListenAddress, "server.http-listen-address", ":8080", "HTTP server listen address.")
	f.StringVar(&c.LogLevel, "log.level", "info", "Logging level: debug, info, warn, error.")
	f.BoolVar(&c.EnableStreaming, "enable-streaming", false, "Expose the opaque /infer/stream proxy endpoint.")
	f.StringVar(&c.APIKeys, "api-keys", "", "tenant:key,tenant:key,... static API key map.")

	c.Registry.RegisterFlagsAndApplyDefaults("registry.", f)
	c.Breaker.RegisterFlagsAndApplyDefaults("breaker.", f)
	c.RateLimit.RegisterFlagsAndApplyDefaults("ratelimit.", f)
	c.Forwarder.RegisterFlagsAndApplyDefaults("forwarder.", f)
}

// ApplyEnvOverrides layers the gateway's environment variable overrides
// on top of whatever flags/defaults already populated c. Env vars win.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("HTTP_LISTEN_ADDRESS"); v != "" {
		c.HTTPListenAddress = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ENABLE_STREAMING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableStreaming = b
		}
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		c.APIKeys = v
	}
	if v := os.Getenv("NODE_EVICTION_TIMEOUT_SEC"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Registry.EvictionTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL_SEC"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Registry.HeartbeatInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("TENANT_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.LimitPerMinute = n
		}
	}
	if v := os.Getenv("GATEWAY_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Forwarder.GatewayTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Forwarder.MaxRetries = n
		}
	}
}

// AuthMapper builds the auth.Mapper described by c.APIKeys.
func (c *Config) AuthMapper() (*auth.Mapper, error) {
	return auth.ParseAPIKeys(c.APIKeys)
}
