package ratelimit

import "flag"

// Config configures the per-tenant sliding-window limiter.
type Config struct {
	LimitPerMinute int `yaml:"limit_per_minute"`
}

// RegisterFlagsAndApplyDefaults applies the TENANT_RATE_LIMIT default (100).
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.LimitPerMinute, prefix+"limit-per-minute", 100, "Requests a tenant may issue per trailing 60s window.")
}
