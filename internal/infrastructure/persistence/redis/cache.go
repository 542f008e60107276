// Package redis holds the Redis-backed cache used for resident progress
// snapshots. The cache is optional: every caller treats its errors as misses.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// URL is a redis:// URL. When set it wins over Addr/Password/DB.
	URL      string
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

// Options converts the config into go-redis options.
func (c Config) Options() (*redis.Options, error) {
	if c.URL != "" {
		opts, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		c.applyTimeouts(opts)
		return opts, nil
	}
	opts := &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
	c.applyTimeouts(opts)
	return opts, nil
}

func (c Config) applyTimeouts(o *redis.Options) {
	if c.PoolSize > 0 {
		o.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		o.MinIdleConns = c.MinIdleConns
	}
	if c.MaxRetries != 0 {
		o.MaxRetries = c.MaxRetries
	}
	if c.DialTimeout > 0 {
		o.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		o.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		o.WriteTimeout = c.WriteTimeout
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrCacheMiss       = errors.New("cache: key not found")
	ErrCacheConnection = errors.New("cache: connection failed")
	ErrCacheKeyEmpty   = errors.New("cache: key cannot be empty")
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")
	ErrCacheBadVersion = errors.New("cache: malformed version")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

const (
	PrefixProgress        = "rms:progress:"
	PrefixProgressVersion = "rms:progress-version:"

	TTLProgress = 5 * time.Minute
)

// ProgressKey is the key of one resident's progress snapshot.
func ProgressKey(residentID string) string {
	return PrefixProgress + residentID
}

// ProgressVersionKey holds the counter bumped on every invalidation of the
// resident's snapshot. It has no TTL.
func ProgressVersionKey(residentID string) string {
	return PrefixProgressVersion + residentID
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache is a thin bytes cache over a go-redis client.
type Cache struct {
	client *redis.Client
}

// NewCache connects and pings Redis.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	c := NewCacheWithClient(redis.NewClient(opts))

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return c, nil
}

// NewCacheWithClient wraps an existing client without pinging it.
func NewCacheWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Close() error { return c.client.Close() }

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetBytes stores raw bytes under key.
func (c *Cache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// GetBytes returns ErrCacheMiss when key is absent.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return data, nil
}

// Delete removes keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// VERSIONED ENTRIES
// A versioned entry is a value key paired with a counter key. Writers read
// the counter before computing the value and store it only if the counter
// has not moved since, so a slow writer cannot resurrect invalidated data.
// ══════════════════════════════════════════════════════════════════════════════

// setIfVersion: KEYS[1] value key, KEYS[2] version key,
// ARGV[1] expected version, ARGV[2] value, ARGV[3] ttl in ms (0 = no expiry).
var setIfVersion = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '0' end
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// GetVersioned returns the value and the current version in one round trip.
// On a miss the error is ErrCacheMiss and the version is still valid.
func (c *Cache) GetVersioned(ctx context.Context, key, versionKey string) ([]byte, int64, error) {
	if key == "" || versionKey == "" {
		return nil, 0, ErrCacheKeyEmpty
	}
	vals, err := c.client.MGet(ctx, key, versionKey).Result()
	if err != nil {
		return nil, 0, err
	}
	version, err := parseVersion(vals[1])
	if err != nil {
		return nil, 0, err
	}
	s, ok := vals[0].(string)
	if !ok {
		return nil, version, ErrCacheMiss
	}
	return []byte(s), version, nil
}

// SetIfVersion stores value only while versionKey still holds version. It
// reports whether the value was written.
func (c *Cache) SetIfVersion(ctx context.Context, key, versionKey string, version int64, value []byte, ttl time.Duration) (bool, error) {
	if key == "" || versionKey == "" {
		return false, ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return false, ErrCacheInvalidTTL
	}
	n, err := setIfVersion.Run(ctx, c.client, []string{key, versionKey},
		strconv.FormatInt(version, 10), value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Bump increments versionKey and drops key atomically.
func (c *Cache) Bump(ctx context.Context, key, versionKey string) error {
	if key == "" || versionKey == "" {
		return ErrCacheKeyEmpty
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func parseVersion(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, ErrCacheBadVersion
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCacheBadVersion, s)
	}
	return n, nil
}
