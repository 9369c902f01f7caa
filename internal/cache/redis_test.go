package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/raine/review-moderator/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisVerdictCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisVerdictCache(context.Background(), RedisConfig{Addr: mr.Addr(), TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisVerdictCache(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	v, err := c.GetVerdict(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, v)

	want := &moderation.ModerationVerdict{Approved: false, Reason: "Image should not be a screenshot"}
	require.NoError(t, c.SetVerdict(ctx, "abc", want))
	assert.True(t, mr.Exists(DefaultPrefix+"abc"))
	assert.Equal(t, time.Hour, mr.TTL(DefaultPrefix+"abc"))

	got, err := c.GetVerdict(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRedisVerdictCache_Expiry(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetVerdict(ctx, "abc", &moderation.ModerationVerdict{Approved: true}))
	mr.FastForward(2 * time.Minute)

	got, err := c.GetVerdict(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisVerdictCache_CorruptEntry(t *testing.T) {
	c, mr := newTestCache(t, 0)
	require.NoError(t, mr.Set(DefaultPrefix+"bad", "not json"))

	_, err := c.GetVerdict(context.Background(), "bad")
	assert.Error(t, err)
}

func TestNewRedisVerdictCache_Errors(t *testing.T) {
	_, err := NewRedisVerdictCache(context.Background(), RedisConfig{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisVerdictCache(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}
