// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rate limiter defaults.
const (
	DefaultBurst           = 10
	DefaultRate            = 0.2
	DefaultCleanupInterval = 5 * time.Minute
	DefaultClientMaxAge    = time.Hour
)

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// Burst is the number of requests a client may make back to back.
	Burst int

	// Rate is the number of tokens refilled per second.
	Rate float64

	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration

	// ClientMaxAge is how long a client may stay idle before it is forgotten.
	ClientMaxAge time.Duration

	// Registerer, when set, receives a gauge of tracked clients.
	Registerer prometheus.Registerer

	// Now overrides the clock. Used in tests.
	Now func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// RateLimiter is a per-client token bucket. It is safe for concurrent use.
// A background goroutine drops idle clients; Close stops it.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	burst   int
	rate    float64
	maxAge  time.Duration
	now     func() time.Time

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	clientGauge prometheus.Gauge
}

// NewRateLimiter starts a RateLimiter. Zero config fields take defaults.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string]*bucket),
		burst:    cfg.Burst,
		rate:     cfg.Rate,
		maxAge:   cfg.ClientMaxAge,
		now:      cfg.Now,
		stopChan: make(chan struct{}),
	}
	if rl.burst <= 0 {
		rl.burst = DefaultBurst
	}
	if rl.rate <= 0 {
		rl.rate = DefaultRate
	}
	if rl.maxAge <= 0 {
		rl.maxAge = DefaultClientMaxAge
	}
	if rl.now == nil {
		rl.now = time.Now
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	if cfg.Registerer != nil {
		rl.clientGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labsite_ratelimiter_clients",
			Help: "Current number of clients tracked by the auth rate limiter",
		})
		cfg.Registerer.MustRegister(rl.clientGauge)
	}

	rl.wg.Add(1)
	go rl.cleanupLoop(interval)
	return rl
}

// Allow consumes a token for client. When none is left it returns false
// and the wait until the next token.
func (rl *RateLimiter) Allow(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.clients[client]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), lastCheck: now}
		rl.clients[client] = b
	}

	b.tokens += now.Sub(b.lastCheck).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
	return false, wait
}

// ClientCount returns the number of tracked clients.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Cleanup forgets clients idle for longer than maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := rl.now().Add(-maxAge)
	for client, b := range rl.clients {
		if b.lastCheck.Before(threshold) {
			delete(rl.clients, client)
		}
	}
	if rl.clientGauge != nil {
		rl.clientGauge.Set(float64(len(rl.clients)))
	}
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	defer rl.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.Cleanup(rl.maxAge)
		}
	}
}

// Close stops the cleanup goroutine and waits for it. It is safe to call
// more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.stopChan)
	})
	rl.wg.Wait()
}

// clientIP is the host part of RemoteAddr. Forwarding headers are not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
