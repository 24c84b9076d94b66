package breaker

import (
	"flag"
	"time"
)

// Config configures the per-node circuit breaker state machine.
//
// HalfOpenMaxAttempts is accepted for configuration-surface compatibility
// but is not forwarded to gobreaker.Settings.MaxRequests: gobreaker only
// closes a half-open circuit once ConsecutiveSuccesses reaches
// MaxRequests, so a single probe must always be allowed through and must
// always close the circuit on success. See breaker.go's circuitFor.
type Config struct {
	FailureThreshold    uint          `yaml:"failure_threshold"`
	RecoveryTimeout     time.Duration `yaml:"recovery_timeout"`
	HalfOpenMaxAttempts uint          `yaml:"half_open_max_attempts"`
}

// RegisterFlagsAndApplyDefaults applies sane defaults: threshold
// 5, recovery 30s, half-open max attempts 3.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.UintVar(&c.FailureThreshold, prefix+"failure-threshold", 5, "Consecutive failures before a node's circuit opens.")
	f.DurationVar(&c.RecoveryTimeout, prefix+"recovery-timeout", 30*time.Second, "Time an open circuit stays open before probing half-open.")
	f.UintVar(&c.HalfOpenMaxAttempts, prefix+"half-open-max-attempts", 3, "Reserved: probe attempts allowed while half-open. Not currently enforced; a single half-open success always closes the circuit.")
}
