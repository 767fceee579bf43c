// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lrm2e/labsite/internal/web"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, burst int, rate float64) (*web.RateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	rl := web.NewRateLimiter(web.RateLimiterConfig{Burst: burst, Rate: rate, Now: clock.Now})
	t.Cleanup(rl.Close)
	return rl, clock
}

func TestRateLimiter_Burst(t *testing.T) {
	rl, _ := newLimiter(t, 3, 1)

	for i := 0; i < 3; i++ {
		ok, wait := rl.Allow("10.0.0.1")
		assert.True(t, ok, "attempt %d", i)
		assert.Zero(t, wait)
	}
	ok, wait := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, float64(time.Second), float64(wait), float64(time.Millisecond))

	ok, _ = rl.Allow("10.0.0.2")
	assert.True(t, ok, "clients have separate buckets")
	assert.Equal(t, 2, rl.ClientCount())
}

func TestRateLimiter_Refill(t *testing.T) {
	rl, clock := newLimiter(t, 2, 0.5)

	for i := 0; i < 2; i++ {
		ok, _ := rl.Allow("c")
		require.True(t, ok)
	}
	ok, _ := rl.Allow("c")
	require.False(t, ok)

	clock.Advance(2 * time.Second)
	ok, _ = rl.Allow("c")
	assert.True(t, ok, "one token refilled")
	ok, _ = rl.Allow("c")
	assert.False(t, ok)

	clock.Advance(time.Hour)
	for i := 0; i < 2; i++ {
		ok, _ := rl.Allow("c")
		assert.True(t, ok)
	}
	ok, _ = rl.Allow("c")
	assert.False(t, ok, "refill is capped at the burst")
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := web.NewRateLimiter(web.RateLimiterConfig{})
	defer rl.Close()

	for i := 0; i < web.DefaultBurst; i++ {
		ok, _ := rl.Allow("c")
		require.True(t, ok)
	}
	ok, _ := rl.Allow("c")
	assert.False(t, ok)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := &fakeClock{now: time.Now()}
	rl := web.NewRateLimiter(web.RateLimiterConfig{Burst: 1, Rate: 1, Now: clock.Now, Registerer: reg})
	defer rl.Close()

	rl.Allow("old")
	clock.Advance(2 * time.Hour)
	rl.Allow("new")

	rl.Cleanup(time.Hour)
	assert.Equal(t, 1, rl.ClientCount())
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "labsite_ratelimiter_clients"))

	ok, _ := rl.Allow("old")
	assert.True(t, ok, "a forgotten client starts with a full bucket")
}

func TestRateLimiter_CloseStopsGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := web.NewRateLimiter(web.RateLimiterConfig{CleanupInterval: time.Millisecond})
	rl.Allow("c")
	rl.Close()
	rl.Close()
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl, _ := newLimiter(t, 50, 0.001)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := rl.Allow("shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
