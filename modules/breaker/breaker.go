// Package breaker implements the gateway's per-node circuit breaker on
// top of github.com/sony/gobreaker's two-step breaker: Allow() gates an
// actual attempt and the caller-supplied done func records its
// success/failure.
//
// A naive is-available check that mutates half-open state on every call
// — including calls made just to filter candidates, e.g. a router
// scanning nodes it never ends up selecting — burns through a breaker's
// limited half-open probe budget on scans instead of real attempts. Here
// a cheap IsAvailable peek (state-only, no side effects beyond
// gobreaker's own lazy generation rollover) is used for router
// filtering, and the two-step Allow()/done() pair, which does consume a
// half-open probe slot, is only exercised around an actual forwarded
// call. This keeps half-open accounting tied to real attempts instead of
// filter scans.
package breaker

import (
	"sync"

	"github.com/go-kit/log/level"
	"github.com/sony/gobreaker"

	"github.com/inferplane/inferplane/pkg/metrics"
	"github.com/inferplane/inferplane/pkg/util/log"
)

// Breaker is a table of independent circuit breakers keyed by node ID.
type Breaker struct {
	cfg     Config
	metrics *metrics.Registry

	mu       sync.Mutex
	circuits map[string]*gobreaker.TwoStepCircuitBreaker
}

// New creates an empty Breaker table. reg may be nil if breaker-open
// events should not be counted.
func New(cfg Config, reg *metrics.Registry) *Breaker {
	return &Breaker{
		cfg:      cfg,
		metrics:  reg,
		circuits: make(map[string]*gobreaker.TwoStepCircuitBreaker),
	}
}

// IsAvailable reports whether node_id's circuit is not open. It never
// blocks a probe slot; see the package doc for why.
func (b *Breaker) IsAvailable(nodeID string) bool {
	return b.circuitFor(nodeID).State() != gobreaker.StateOpen
}

// Allow gates an actual forwarded call: it returns ok=false if the
// circuit refuses the attempt (open, or half-open probe budget spent).
// On ok=true, the caller must invoke the returned complete func exactly
// once with the call's outcome.
func (b *Breaker) Allow(nodeID string) (complete func(success bool), ok bool) {
	done, err := b.circuitFor(nodeID).Allow()
	if err != nil {
		return nil, false
	}
	return done, true
}

func (b *Breaker) circuitFor(nodeID string) *gobreaker.TwoStepCircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.circuits[nodeID]
	if ok {
		return cb
	}

	cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name: nodeID,
		// MaxRequests must stay 1: gobreaker only closes a half-open
		// breaker once ConsecutiveSuccesses reaches MaxRequests, so any
		// larger value would require several consecutive successful
		// probes before closing instead of the single success that
		// should immediately reset the circuit.
		MaxRequests: 1,
		Timeout:     b.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(b.cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			level.Info(log.Logger).Log("msg", "circuit breaker state change", "node_id", name, "from", from, "to", to)
			if to == gobreaker.StateOpen && b.metrics != nil {
				b.metrics.RecordCircuitBreakerOpen()
			}
		},
	})
	b.circuits[nodeID] = cb
	return cb
}
