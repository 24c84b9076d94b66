package batcher

import (
	"flag"
	"time"
)

// Config holds the dynamic batcher's size and latency triggers.
type Config struct {
	MaxBatchSize    int           `yaml:"max_batch_size"`
	MaxBatchLatency time.Duration `yaml:"max_batch_latency"`
}

// RegisterFlagsAndApplyDefaults registers f.* flags under prefix and sets
// sane defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.MaxBatchSize, prefix+"max-batch-size", 8, "Maximum number of requests per emitted batch.")
	f.DurationVar(&c.MaxBatchLatency, prefix+"max-batch-latency", 50*time.Millisecond, "Maximum time a partially-filled batch waits before being flushed.")
}
