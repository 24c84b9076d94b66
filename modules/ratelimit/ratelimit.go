// Package ratelimit implements the gateway's per-tenant sliding-window
// request counter. Deliberately not backed by golang.org/x/time/rate: a
// token bucket models average rate with burst capacity, but a tenant
// limit needs an exact trailing-60s count, which a bucket's refill
// approximation cannot reproduce precisely. x/time/rate is used instead
// in cmd/loadgen, where approximate pacing is exactly what's wanted.
package ratelimit

import (
	"sync"
	"time"
)

const window = 60 * time.Second

// Limiter tracks one sliding window of request timestamps per tenant.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	tenants map[string][]time.Time
}

// New builds a Limiter with the given per-tenant limit.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		tenants: make(map[string][]time.Time),
	}
}

// Allow prunes timestamps older than the trailing 60s window for tenant,
// and admits the request (recording it) iff the remaining count is below
// the configured limit. Returns false when the tenant is over budget.
func (l *Limiter) Allow(tenant string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	timestamps := l.tenants[tenant]
	pruned := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= l.cfg.LimitPerMinute {
		l.tenants[tenant] = pruned
		return false
	}

	l.tenants[tenant] = append(pruned, now)
	return true
}
