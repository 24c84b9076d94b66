package registry

import (
	"flag"
	"time"
)

// Config configures a Registry's staleness/eviction behavior, set via the
// NODE_EVICTION_TIMEOUT_SEC / HEARTBEAT_INTERVAL_SEC environment
// variables.
type Config struct {
	// EvictionTimeout is the age past which a node is marked unhealthy.
	// It is removed entirely past 2x this value.
	EvictionTimeout time.Duration `yaml:"eviction_timeout"`
	// HeartbeatInterval is both the expected heartbeat cadence and the
	// eviction loop's scan period.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// RegisterFlagsAndApplyDefaults registers flags under prefix and applies
// sane defaults (eviction 10s, heartbeat 5s).
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&c.EvictionTimeout, prefix+"eviction-timeout", 10*time.Second, "Node staleness timeout before marking unhealthy/evicting.")
	f.DurationVar(&c.HeartbeatInterval, prefix+"heartbeat-interval", 5*time.Second, "Expected node heartbeat interval and eviction scan period.")
}
