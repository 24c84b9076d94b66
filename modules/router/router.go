// Package router implements the gateway's load-aware node selection.
package router

import (
	"github.com/inferplane/inferplane/modules/registry"
)

// AvailabilityChecker reports whether a node's circuit breaker currently
// permits traffic. Satisfied by *breaker.Breaker's IsAvailable method.
type AvailabilityChecker interface {
	IsAvailable(nodeID string) bool
}

// Registry is the subset of registry.Registry the router needs.
type Registry interface {
	HealthyNodes() []registry.NodeInfo
}

// Router selects a node to forward a request to.
type Router struct {
	registry Registry
	breaker  AvailabilityChecker
}

// New builds a Router over reg, filtering by breaker availability.
func New(reg Registry, breaker AvailabilityChecker) *Router {
	return &Router{registry: reg, breaker: breaker}
}

// SelectNode returns the healthy, non-tripped node with the greatest
// available capacity (max_capacity - current_load). Ties are broken by
// encounter order, matching the registry's (unordered) iteration. Returns
// false if no candidate remains.
func (r *Router) SelectNode() (registry.NodeInfo, bool) {
	var best registry.NodeInfo
	found := false

	for _, node := range r.registry.HealthyNodes() {
		if !r.breaker.IsAvailable(node.NodeID) {
			continue
		}
		if !found || node.AvailableCapacity() > best.AvailableCapacity() {
			best = node
			found = true
		}
	}

	return best, found
}
