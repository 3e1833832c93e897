// Package ratelimit throttles factory API clients with per-endpoint token
// buckets. Run starts and resumes fan out to LLM generation, so those routes
// get far tighter limits than plain reads; the per-route budgets live in
// config.go.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// bucket is one client's token budget for one route. Tokens refill
// continuously at perSec; a request consumes one whole token.
type bucket struct {
	mu       sync.Mutex
	cap      float64
	perSec   float64
	tokens   float64
	refilled time.Time
	lastSeen time.Time
}

func newBucket(capacity int, perSec float64) *bucket {
	now := time.Now()
	return &bucket{
		cap:      float64(capacity),
		perSec:   perSec,
		tokens:   float64(capacity),
		refilled: now,
		lastSeen: now,
	}
}

// refill credits tokens for the time elapsed since the last refill.
// Callers must hold b.mu.
func (b *bucket) refill(now time.Time) {
	b.tokens += now.Sub(b.refilled).Seconds() * b.perSec
	if b.tokens > b.cap {
		b.tokens = b.cap
	}
	b.refilled = now
}

// take consumes one token if available and reports the remaining budget and
// the time at which the bucket is full again.
func (b *bucket) take() (allowed bool, remaining int, reset time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refill(now)
	b.lastSeen = now

	if b.tokens >= 1.0 {
		allowed = true
		b.tokens -= 1.0
	}

	remaining = int(b.tokens)
	reset = now
	if b.tokens < b.cap {
		reset = now.Add(time.Duration((b.cap - b.tokens) / b.perSec * float64(time.Second)))
	}
	return allowed, remaining, reset
}

func (b *bucket) seen() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

// Info describes the outcome of a rate limit check, for response headers.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter tracks one bucket per (client, route, method). Idle buckets are
// dropped periodically so one-off clients do not accumulate forever.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	config  *Config

	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
}

// Config holds limiter-wide settings; per-route budgets are EndpointConfigs.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// NewLimiter creates a limiter. A nil config enables limiting with the
// default budget and no per-route overrides.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		config:  config,
	}

	if config.Enabled && config.CleanupInterval > 0 {
		l.cleanupTicker = time.NewTicker(config.CleanupInterval)
		l.cleanupStop = make(chan struct{})
		go l.cleanupLoop()
	}
	return l
}

// Allow reports whether a request from clientID to the given path and method
// fits the client's budget, along with header values for the response.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	route := matchRoute(path, method, l.config.EndpointConfigs)
	if route == nil {
		route = &EndpointConfig{
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
		}
	}
	// Limit <= 0 means the route is unmetered, e.g. health checks.
	if route.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	b := l.bucketFor(clientID+":"+path+":"+method, route)
	allowed, remaining, reset := b.take()

	info := Info{
		Allowed:   allowed,
		Limit:     route.Limit,
		Remaining: remaining,
		ResetTime: reset,
	}
	if !allowed {
		if info.RetryAfter = time.Until(reset); info.RetryAfter < 0 {
			info.RetryAfter = 0
		}
	}
	return allowed, info
}

// Stop terminates the idle-bucket cleanup loop.
func (l *Limiter) Stop() {
	if l.cleanupTicker != nil {
		l.cleanupTicker.Stop()
	}
	if l.cleanupStop != nil {
		close(l.cleanupStop)
	}
}

func (l *Limiter) bucketFor(key string, route *EndpointConfig) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	capacity := route.Burst
	if capacity <= 0 {
		capacity = route.Limit
	}
	perSec := float64(route.Limit) / route.Window.Seconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b = newBucket(capacity, perSec)
	l.buckets[key] = b
	return b
}

func (l *Limiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.dropIdleBuckets(time.Now().Add(-1 * time.Hour))
		case <-l.cleanupStop:
			return
		}
	}
}

func (l *Limiter) dropIdleBuckets(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.seen().Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// matchRoute resolves the budget for a request, preferring an exact
// path+method entry, then a prefix entry (a Path ending in "/"). The health
// check is always unmetered.
func matchRoute(path, method string, routes []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == "GET" {
		return &EndpointConfig{}
	}

	for i := range routes {
		if routes[i].Path == path && routes[i].Method == method {
			return &routes[i]
		}
	}
	for i := range routes {
		r := &routes[i]
		if r.Method == method && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			return r
		}
	}
	return nil
}
