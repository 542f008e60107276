package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rms-hub/residency-hub/pkg/circuitbreaker"
)

// unreachable returns a cache whose every call fails fast.
func unreachable() *Cache {
	return NewCacheWithClient(goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}))
}

func TestConfig_Options(t *testing.T) {
	opts, err := Config{URL: "redis://:pw@cache:6380/2", ReadTimeout: time.Second}.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, time.Second, opts.ReadTimeout)

	opts, err = DefaultConfig().Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Config{URL: "http://nope"}.Options()
	assert.Error(t, err)
}

func TestProgressKey(t *testing.T) {
	assert.Equal(t, "rms:progress:res-chen", ProgressKey("res-chen"))
	assert.Equal(t, "rms:progress-version:res-chen", ProgressVersionKey("res-chen"))
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion(nil)
	require.NoError(t, err)
	assert.Zero(t, v, "a missing counter is version 0")

	v, err = parseVersion("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = parseVersion("x")
	assert.ErrorIs(t, err, ErrCacheBadVersion)
	_, err = parseVersion(int64(1))
	assert.ErrorIs(t, err, ErrCacheBadVersion)
}

func TestProgressCache_SkipsWriteWithoutVersion(t *testing.T) {
	c := unreachable()
	defer c.Close()
	pc := NewProgressCache(c, 0, nil)

	for i := 0; i < 10; i++ {
		pc.PutProgress(context.Background(), "res-chen", -1, []byte(`{}`))
	}
	assert.Equal(t, circuitbreaker.StateClosed, pc.BreakerState(), "no call reached Redis")
}

func TestCache_RejectsBadInput(t *testing.T) {
	c := unreachable()
	defer c.Close()
	ctx := context.Background()

	assert.ErrorIs(t, c.SetBytes(ctx, "", nil, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.SetBytes(ctx, "k", nil, -time.Second), ErrCacheInvalidTTL)
	_, err := c.GetBytes(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))

	_, _, err = c.GetVersioned(ctx, "k", "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	_, err = c.SetIfVersion(ctx, "k", "v", 0, nil, -time.Second)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Bump(ctx, "", "v"), ErrCacheKeyEmpty)
}

func TestProgressCache_DegradesToMissAndOpensBreaker(t *testing.T) {
	c := unreachable()
	defer c.Close()
	pc := NewProgressCache(c, 0, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, version, hit := pc.GetProgress(ctx, "res-chen")
		assert.False(t, hit)
		assert.Equal(t, int64(-1), version, "unreadable version disables write-back")
	}
	assert.Equal(t, circuitbreaker.StateOpen, pc.BreakerState())

	pc.PutProgress(ctx, "res-chen", 0, []byte(`{}`))
	err := pc.InvalidateProgress(ctx, "res-chen")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}
