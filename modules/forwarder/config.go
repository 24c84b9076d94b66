package forwarder

import (
	"flag"
	"time"
)

// Config holds the gateway's forwarding-loop parameters.
type Config struct {
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// RegisterFlagsAndApplyDefaults registers f.* flags under prefix and sets
// sane defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&c.GatewayTimeout, prefix+"gateway-timeout", 30*time.Second, "Timeout for a single forwarded call to an inference node.")
	f.IntVar(&c.MaxRetries, prefix+"max-retries", 1, "Maximum number of retries after the initial forwarding attempt.")
}
