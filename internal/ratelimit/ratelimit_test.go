package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/taskhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvitationLimiterDisabledWithoutRedis(t *testing.T) {
	limiter, err := NewInvitationLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	ok, err := limiter.Allow(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok)

	token, locked, err := limiter.LockRecipient(context.Background(), "1", "a@b.c")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Empty(t, token)
	assert.NoError(t, limiter.ReleaseRecipient(context.Background(), "1", "a@b.c", token))
}

func TestInvitationLimiterRejectsInvalidRate(t *testing.T) {
	_, err := NewInvitationLimiter(config.Config{RateLimit: config.RateLimitConfig{RedisAddr: "localhost:6379"}}, nil)
	assert.Error(t, err)
}

func TestRecipientLockKeyNormalizesEmail(t *testing.T) {
	assert.Equal(t, "invitations:lock:42:bee@example.com", RecipientLockKey(" 42 ", " Bee@Example.com "))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(1, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 0))
}

func TestNilBucketIsNotConfigured(t *testing.T) {
	var bucket *tokenBucket
	allowed, _, err := bucket.take(context.Background(), "k")
	assert.ErrorIs(t, err, errBucketNotConfigured)
	assert.False(t, allowed)
	assert.Nil(t, newTokenBucket(nil, 1, 1))
}
