package registryclient

import (
	"flag"
	"time"
)

// Config holds the node's self-registration parameters.
type Config struct {
	GatewayURL        string        `yaml:"gateway_url"`
	NodeID            string        `yaml:"node_id"`
	NodeURL           string        `yaml:"node_url"`
	MaxCapacity       int           `yaml:"max_capacity"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// RegisterFlagsAndApplyDefaults registers f.* flags under prefix and sets
// sane defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.GatewayURL, prefix+"gateway-url", "", "Base URL of the gateway this node registers with. Registration is skipped if empty.")
	f.StringVar(&c.NodeID, prefix+"node-id", "", "This node's unique identifier.")
	f.StringVar(&c.NodeURL, prefix+"node-url", "", "This node's own reachable base URL, advertised to the gateway.")
	f.IntVar(&c.MaxCapacity, prefix+"max-capacity", 16, "Maximum in-flight requests this node advertises to the gateway.")
	f.DurationVar(&c.HeartbeatInterval, prefix+"heartbeat-interval", 5*time.Second, "Interval between heartbeat pings to the gateway.")
}
