package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "ttl_key", "val", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetNX(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	v, _ := c.Get(ctx, "lock")
	assert.Equal(t, "a", v)
}

func TestSetNX_AfterExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, _ := c.SetNX(ctx, "lock", "a", 5*time.Millisecond)
	require.True(t, ok)
	time.Sleep(15 * time.Millisecond)

	ok, _ = c.SetNX(ctx, "lock", "b", time.Minute)
	assert.True(t, ok)
}

func TestExpire(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Expire(ctx, "nope", time.Second), ErrNotFound)

	_, _ = c.SetNX(ctx, "k", "v", 0)
	require.NoError(t, c.Expire(ctx, "k", 5*time.Millisecond))
	time.Sleep(15 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpire_ExtendsLease(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, _ = c.SetNX(ctx, "lease", "v", 10*time.Millisecond)
	require.NoError(t, c.Expire(ctx, "lease", time.Minute))
	time.Sleep(20 * time.Millisecond)
	v, err := c.Get(ctx, "lease")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestCompareAndDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_, _ = c.SetNX(ctx, "lock", "owner-a", 0)

	ok, err := c.CompareAndDelete(ctx, "lock", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CompareAndDelete(ctx, "lock", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.Get(ctx, "lock")
	assert.ErrorIs(t, err, ErrNotFound)
}
