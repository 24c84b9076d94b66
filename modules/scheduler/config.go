package scheduler

import (
	"flag"
	"time"
)

// Config holds the scheduler's requeue-retry pacing.
type Config struct {
	RequeueBackoff time.Duration `yaml:"requeue_backoff"`
}

// RegisterFlagsAndApplyDefaults registers f.* flags under prefix and sets
// sane defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&c.RequeueBackoff, prefix+"requeue-backoff", 10*time.Millisecond, "Delay before retrying dispatch of a batch when no worker is available.")
}
