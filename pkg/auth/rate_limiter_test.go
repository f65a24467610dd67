package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketLimiter_ExhaustsAndResets(t *testing.T) {
	ctx := context.Background()
	limiter := NewTokenBucketLimiter(2, time.Hour)

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i)
	}

	allowed, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Other keys have their own bucket.
	allowed, err = limiter.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "k"))
	allowed, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestTokenBucketLimiter_SetRateAppliesToNewBuckets(t *testing.T) {
	ctx := context.Background()
	limiter := NewTokenBucketLimiter(1, time.Hour)

	allowed, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, allowed)

	limiter.SetRate(3, time.Hour)
	require.NoError(t, limiter.Reset(ctx, "k"))

	for i := 0; i < 3; i++ {
		allowed, err = limiter.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass under the new budget", i)
	}
	allowed, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestUserAndIPLimitersKeySeparately(t *testing.T) {
	ctx := context.Background()
	users := NewUserRateLimiter(1)
	ips := NewIPRateLimiter(1)

	allowed, err := users.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = users.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, allowed)

	// The same string as an IP key is a different bucket.
	allowed, err = ips.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, allowed)
}
