package orchestrator

import (
	"flag"

	"github.com/inferplane/inferplane/modules/batcher"
	"github.com/inferplane/inferplane/modules/scheduler"
)

// Config holds the node pipeline's wiring parameters.
type Config struct {
	MaxInFlightRequests int  `yaml:"max_in_flight_requests"`
	GPUCount            int  `yaml:"gpu_count"`
	UseMockModel        bool `yaml:"use_mock_model"`

	Batcher   batcher.Config   `yaml:"batcher"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

// RegisterFlagsAndApplyDefaults registers f.* flags under prefix and sets
// sane defaults, recursing into the embedded component configs.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.MaxInFlightRequests, prefix+"max-in-flight-requests", 100, "Maximum number of requests admitted to this node's queue at once.")
	f.IntVar(&c.GPUCount, prefix+"gpu-count", 0, "Number of GPU workers to run. 0 runs a single worker; GPUs are not detected.")
	f.BoolVar(&c.UseMockModel, prefix+"use-mock-model", false, "Serve inference from a deterministic mock backend instead of a real model.")

	c.Batcher.RegisterFlagsAndApplyDefaults(prefix+"batcher.", f)
	c.Scheduler.RegisterFlagsAndApplyDefaults(prefix+"scheduler.", f)
}
