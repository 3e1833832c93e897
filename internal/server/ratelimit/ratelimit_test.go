package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_BurstThenDeny(t *testing.T) {
	b := newBucket(10, 1.0)

	for i := 0; i < 10; i++ {
		allowed, _, _ := b.take()
		require.True(t, allowed, "request %d within the burst", i+1)
	}

	allowed, remaining, reset := b.take()
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
	assert.True(t, reset.After(time.Now()), "reset lies in the future while drained")
}

func TestBucket_Refills(t *testing.T) {
	b := newBucket(2, 10.0) // refills fast enough to observe in a test

	for i := 0; i < 2; i++ {
		allowed, _, _ := b.take()
		require.True(t, allowed)
	}
	allowed, _, _ := b.take()
	require.False(t, allowed)

	time.Sleep(150 * time.Millisecond)

	allowed, _, _ = b.take()
	assert.True(t, allowed, "a token refilled while waiting")
}

func TestLimiter_DefaultBudget(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("10.0.0.1", "/projects", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := limiter.Allow("10.0.0.1", "/projects", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestLimiter_RouteBudgetOverridesDefault(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/runs/", Method: "POST", Limit: 3, Window: time.Hour, Burst: 3},
		},
	})
	defer limiter.Stop()

	// Run starts are metered by the tight route budget.
	for i := 0; i < 3; i++ {
		allowed, info := limiter.Allow("10.0.0.1", "/runs/abc/start", "POST")
		require.True(t, allowed, "start %d", i+1)
		assert.Equal(t, 3, info.Limit)
	}
	allowed, _ := limiter.Allow("10.0.0.1", "/runs/abc/start", "POST")
	assert.False(t, allowed)

	// Reads on the same run still fall under the default budget.
	allowed, info := limiter.Allow("10.0.0.1", "/runs/abc", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)
}

func TestLimiter_BurstBelowLimit(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/auth/login", Method: "POST", Limit: 20, Window: time.Minute, Burst: 5},
		},
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		allowed, _ := limiter.Allow("10.0.0.1", "/auth/login", "POST")
		require.True(t, allowed, "attempt %d", i+1)
	}
	allowed, _ := limiter.Allow("10.0.0.1", "/auth/login", "POST")
	assert.False(t, allowed, "burst capacity caps instantaneous attempts")
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	allowed, _ := limiter.Allow("10.0.0.1", "/projects", "GET")
	require.True(t, allowed)
	allowed, _ = limiter.Allow("10.0.0.1", "/projects", "GET")
	require.False(t, allowed)

	allowed, _ = limiter.Allow("10.0.0.2", "/projects", "GET")
	assert.True(t, allowed, "another client keeps its own budget")
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		Blacklist:     map[string]bool{"10.0.0.9": true},
	})
	defer limiter.Stop()

	for i := 0; i < 20; i++ {
		allowed, _ := limiter.Allow("10.0.0.1", "/projects", "GET")
		require.True(t, allowed, "whitelisted request %d", i+1)
	}

	allowed, _ := limiter.Allow("10.0.0.9", "/projects", "GET")
	assert.False(t, allowed, "blacklisted clients are always denied")
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: false})
	defer limiter.Stop()

	for i := 0; i < 50; i++ {
		allowed, info := limiter.Allow("10.0.0.1", "/projects", "GET")
		require.True(t, allowed)
		assert.Zero(t, info.Limit)
	}
}

func TestLimiter_HealthIsUnmetered(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 20; i++ {
		allowed, _ := limiter.Allow("10.0.0.1", "/health", "GET")
		require.True(t, allowed, "health check %d", i+1)
	}
}

func TestLimiter_NilConfigUsesDefaults(t *testing.T) {
	limiter := NewLimiter(nil)
	defer limiter.Stop()

	allowed, info := limiter.Allow("10.0.0.1", "/projects", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("10.0.0.1", "/projects", "GET"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowedCount)
}

func TestLimiter_DropsIdleBuckets(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		limiter.Allow(fmt.Sprintf("10.0.0.%d", i+1), "/projects", "GET")
	}

	// Everything is idle relative to a future cutoff.
	limiter.dropIdleBuckets(time.Now().Add(time.Minute))

	limiter.mu.RLock()
	n := len(limiter.buckets)
	limiter.mu.RUnlock()
	assert.Zero(t, n)

	// Dropped clients start over with a fresh budget.
	allowed, info := limiter.Allow("10.0.0.1", "/projects", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 9, info.Remaining)
}

func TestMatchRoute(t *testing.T) {
	routes := []EndpointConfig{
		{Path: "/runs/", Method: "POST", Limit: 30, Window: time.Hour},
		{Path: "/auth/login", Method: "POST", Limit: 20, Window: time.Minute},
	}

	tests := []struct {
		name      string
		path      string
		method    string
		wantLimit int
		wantNil   bool
	}{
		{name: "exact match", path: "/auth/login", method: "POST", wantLimit: 20},
		{name: "prefix match", path: "/runs/abc/resume/epics", method: "POST", wantLimit: 30},
		{name: "method mismatch", path: "/runs/abc", method: "GET", wantNil: true},
		{name: "health unmetered", path: "/health", method: "GET", wantLimit: 0},
		{name: "unknown path", path: "/nowhere", method: "GET", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := matchRoute(tt.path, tt.method, routes)
			if tt.wantNil {
				assert.Nil(t, route)
				return
			}
			require.NotNil(t, route)
			assert.Equal(t, tt.wantLimit, route.Limit)
		})
	}
}
