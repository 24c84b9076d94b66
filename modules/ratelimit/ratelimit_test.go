package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowsUpToLimit(t *testing.T) {
	l := New(Config{LimitPerMinute: 3})

	require.True(t, l.Allow("tenant-a"))
	require.True(t, l.Allow("tenant-a"))
	require.True(t, l.Allow("tenant-a"))
	require.False(t, l.Allow("tenant-a"))
}

func TestTenantsAreIndependent(t *testing.T) {
	l := New(Config{LimitPerMinute: 1})

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	require.False(t, l.Allow("a"))
}

func TestWindowSlidesAfterSixtySeconds(t *testing.T) {
	l := New(Config{LimitPerMinute: 1})
	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	fakeNow = fakeNow.Add(61 * time.Second)
	require.True(t, l.Allow("a"))
}
