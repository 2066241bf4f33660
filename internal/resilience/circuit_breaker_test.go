// SPDX-License-Identifier: MIT

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

var errUpstream = errors.New("upstream down")

func failing() error { return errUpstream }

func succeeding() error { return nil }

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(failing), errUpstream)
		assert.Equal(t, StateClosed, cb.State())
	}
	assert.ErrorIs(t, cb.Execute(failing), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls are rejected without reaching the upstream.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 30*time.Second, WithClock(clk))

	require.ErrorIs(t, cb.Execute(failing), errUpstream)
	require.Equal(t, StateOpen, cb.State())

	// Before the reset timeout the probe is still rejected.
	clk.advance(29 * time.Second)
	assert.ErrorIs(t, cb.Execute(succeeding), ErrCircuitOpen)

	// After the timeout one probe goes through; success closes.
	clk.advance(2 * time.Second)
	assert.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 30*time.Second, WithClock(clk))

	require.ErrorIs(t, cb.Execute(failing), errUpstream)
	clk.advance(31 * time.Second)

	assert.ErrorIs(t, cb.Execute(failing), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(succeeding), ErrCircuitOpen, "reopened immediately")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)

	require.ErrorIs(t, cb.Execute(failing), errUpstream)
	require.ErrorIs(t, cb.Execute(failing), errUpstream)
	require.NoError(t, cb.Execute(succeeding))

	// The streak restarted; two more failures do not trip.
	require.ErrorIs(t, cb.Execute(failing), errUpstream)
	require.ErrorIs(t, cb.Execute(failing), errUpstream)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("test", 0, 0)
	assert.Equal(t, 3, cb.threshold)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
	assert.Equal(t, StateClosed, cb.State())
}
