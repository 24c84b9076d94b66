// Package registry implements the gateway's node membership table. It
// tracks NodeInfo per node, serializes every mutation under a single
// mutex, and runs a background eviction loop, driven as a
// dskit/services.Service, that marks stale nodes unhealthy.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"

	"github.com/inferplane/inferplane/pkg/util/log"
)

// NodeInfo is one registered inference node.
type NodeInfo struct {
	NodeID         string
	URL            string
	MaxCapacity    int
	CurrentLoad    int
	LastHeartbeat  time.Time
	Healthy        bool
}

// AvailableCapacity is MaxCapacity - CurrentLoad, floored at 0.
func (n NodeInfo) AvailableCapacity() int {
	avail := n.MaxCapacity - n.CurrentLoad
	if avail < 0 {
		return 0
	}
	return avail
}

// Registry is the gateway's ephemeral node membership table.
type Registry struct {
	services.Service

	cfg Config
	now func() time.Time

	mu    sync.Mutex
	nodes map[string]*NodeInfo
}

// New creates a Registry and its eviction-loop service, not yet started.
func New(cfg Config) *Registry {
	r := &Registry{
		cfg:   cfg,
		now:   time.Now,
		nodes: make(map[string]*NodeInfo),
	}
	r.Service = services.NewBasicService(nil, r.running, nil)
	return r
}

// Register idempotently inserts or replaces node_id, resetting heartbeat
// and load. max_capacity must be positive.
func (r *Registry) Register(nodeID, url string, maxCapacity int) error {
	if maxCapacity <= 0 {
		return fmt.Errorf("max_capacity must be positive, got %d", maxCapacity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes[nodeID] = &NodeInfo{
		NodeID:        nodeID,
		URL:           url,
		MaxCapacity:   maxCapacity,
		CurrentLoad:   0,
		LastHeartbeat: r.now(),
		Healthy:       true,
	}
	level.Info(log.Logger).Log("msg", "node registered", "node_id", nodeID, "url", url, "max_capacity", maxCapacity)
	return nil
}

// Heartbeat updates last_heartbeat and marks the node healthy. Returns
// false if node_id is unknown.
func (r *Registry) Heartbeat(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		return false
	}
	node.LastHeartbeat = r.now()
	node.Healthy = true
	return true
}

// HealthyNodes returns a snapshot of every node that is healthy and not
// stale beyond EvictionTimeout.
func (r *Registry) HealthyNodes() []NodeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]NodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		if n.Healthy && now.Sub(n.LastHeartbeat) <= r.cfg.EvictionTimeout {
			out = append(out, *n)
		}
	}
	return out
}

// Get returns a copy of the node's current state, if known.
func (r *Registry) Get(nodeID string) (NodeInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		return NodeInfo{}, false
	}
	return *node, true
}

// IncrementLoad atomically checks healthy and, if true, increments
// current_load. The caller must not forward a request when this returns
// false.
func (r *Registry) IncrementLoad(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok || !node.Healthy {
		return false
	}
	node.CurrentLoad++
	return true
}

// DecrementLoad decrements current_load, saturating at 0. A decrement
// against a node that has since been evicted is a no-op.
func (r *Registry) DecrementLoad(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		return
	}
	if node.CurrentLoad > 0 {
		node.CurrentLoad--
	}
}

// running drives the eviction loop for the lifetime of ctx, on a ticker
// of cfg.HeartbeatInterval, until ctx is cancelled by StopAsync.
func (r *Registry) running(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.evictStale()
		}
	}
}

func (r *Registry) evictStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for nodeID, node := range r.nodes {
		age := now.Sub(node.LastHeartbeat)
		if age > 2*r.cfg.EvictionTimeout {
			delete(r.nodes, nodeID)
			level.Info(log.Logger).Log("msg", "node evicted", "node_id", nodeID)
			continue
		}
		if age > r.cfg.EvictionTimeout && node.Healthy {
			node.Healthy = false
			level.Warn(log.Logger).Log("msg", "node marked unhealthy", "node_id", nodeID)
		}
	}
}
