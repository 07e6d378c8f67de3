package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiterFirstCallIsImmediate(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, 2*time.Hour)

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimpleRateLimiterSpacesCalls(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 40*time.Millisecond)

	require.NoError(t, r.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiterCancelled(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestCalculateDelayWithinBounds(t *testing.T) {
	r := NewSimpleRateLimiter(time.Second, 3*time.Second)
	for i := 0; i < 50; i++ {
		d := r.calculateDelay()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 3*time.Second)
	}

	fixed := NewSimpleRateLimiter(2*time.Second, 2*time.Second)
	assert.Equal(t, 2*time.Second, fixed.calculateDelay())
}

func TestAdaptiveRateLimiterBacksOff(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	a.RecordError()
	a.RecordError()
	lo, hi := a.Delays()
	assert.Equal(t, 2*time.Second, lo, "no backoff before the error threshold")

	a.RecordError()
	lo, hi = a.Delays()
	assert.Equal(t, 3*time.Second, lo)
	assert.Equal(t, 6*time.Second, hi)

	for i := 0; i < 6; i++ {
		a.RecordSuccess()
	}
	lo, _ = a.Delays()
	assert.Equal(t, 2700*time.Millisecond, lo)

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	lo, _ = a.Delays()
	assert.Equal(t, 2*time.Second, lo, "never relaxes below the initial minimum")
}

func TestAdaptiveRateLimiterCaps(t *testing.T) {
	a := NewAdaptiveRateLimiter(50*time.Second, 100*time.Second)
	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	lo, hi := a.Delays()
	assert.Equal(t, 60*time.Second, lo)
	assert.Equal(t, 120*time.Second, hi)
}

func TestTokenBucket(t *testing.T) {
	b := NewTokenBucketRateLimiter(2, 50*time.Millisecond)

	require.NoError(t, b.Wait(context.Background()))
	require.NoError(t, b.Wait(context.Background()))
	assert.Equal(t, 0, b.Available())

	start := time.Now()
	require.NoError(t, b.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
}
