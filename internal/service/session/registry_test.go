package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chat/backend/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
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

func TestCreateIsValidImmediately(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(30*time.Minute, WithClock(clock.Now))

	token := reg.Create(7)
	require.NotEmpty(t, token)

	id, ok := reg.Validate(token)
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestCreateReturnsUniqueTokens(t *testing.T) {
	reg := NewRegistry(time.Minute)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token := reg.Create(int64(i))
		_, dup := seen[token]
		require.False(t, dup, "duplicate token %s", token)
		seen[token] = struct{}{}
	}
	assert.Equal(t, 100, reg.Len())
}

func TestValidateSlidesExpiry(t *testing.T) {
	clock := newFakeClock()
	window := 10 * time.Minute
	reg := NewRegistry(window, WithClock(clock.Now))
	token := reg.Create(1)

	// Each use inside the window pushes expiry forward, so the session
	// outlives several windows of wall-clock time.
	for i := 0; i < 5; i++ {
		clock.Advance(window - time.Second)
		_, ok := reg.Validate(token)
		require.True(t, ok, "validation %d should succeed", i)
	}
}

func TestValidateFailsAfterInactivity(t *testing.T) {
	clock := newFakeClock()
	window := 10 * time.Minute
	reg := NewRegistry(window, WithClock(clock.Now))
	token := reg.Create(1)

	clock.Advance(window)
	_, ok := reg.Validate(token)
	assert.False(t, ok)
	assert.Zero(t, reg.Len(), "expired session should be dropped on validation")

	// A failed validation must not resurrect the session.
	clock.Advance(-time.Minute)
	_, ok = reg.Validate(token)
	assert.False(t, ok)
}

func TestValidateUnknownToken(t *testing.T) {
	reg := NewRegistry(time.Minute)

	_, ok := reg.Validate("missing")
	assert.False(t, ok)

	_, ok = reg.Validate("")
	assert.False(t, ok)
}

func TestRevoke(t *testing.T) {
	reg := NewRegistry(time.Minute)
	token := reg.Create(3)

	reg.Revoke(token)
	_, ok := reg.Validate(token)
	assert.False(t, ok)

	// Revoking twice is harmless.
	reg.Revoke(token)
	assert.Zero(t, reg.Len())
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	window := time.Minute
	reg := NewRegistry(window, WithClock(clock.Now))

	stale := reg.Create(1)
	clock.Advance(30 * time.Second)
	fresh := reg.Create(2)
	clock.Advance(30 * time.Second)

	removed := reg.Sweep()
	assert.Equal(t, 1, removed)

	_, ok := reg.Validate(stale)
	assert.False(t, ok)
	_, ok = reg.Validate(fresh)
	assert.True(t, ok)
}

func TestRunClearsOnShutdown(t *testing.T) {
	reg := NewRegistry(time.Hour)
	tokens := []string{reg.Create(1), reg.Create(2), reg.Create(3)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- reg.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	assert.Zero(t, reg.Len())
	for _, token := range tokens {
		_, ok := reg.Validate(token)
		assert.False(t, ok)
	}
}

func TestRunSweepsPeriodically(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(time.Minute, WithClock(clock.Now))
	reg.Create(1)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = reg.run(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		return reg.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentValidateAndSweep(t *testing.T) {
	reg := NewRegistry(time.Hour)
	token := reg.Create(9)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, ok := reg.Validate(token)
				assert.True(t, ok)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				reg.Sweep()
			}
		}()
	}
	wg.Wait()
}

func TestSessionsActiveTracksRegistry(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(time.Minute, WithClock(clock.Now))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			reg.Revoke(reg.Create(id))
			reg.Create(id)
		}(int64(i))
	}
	wg.Wait()
	assert.Equal(t, float64(16), testutil.ToFloat64(metrics.SessionsActive))

	clock.Advance(time.Minute)
	reg.Sweep()
	assert.Zero(t, testutil.ToFloat64(metrics.SessionsActive))
}
