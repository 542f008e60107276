package redis

import (
	"context"
	"errors"
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/pkg/circuitbreaker"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

// ProgressCache stores serialized progress responses per resident.
// Reads and writes never fail the caller: errors are logged and reported
// as misses, and a breaker stops calling Redis while it is down.
type ProgressCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewProgressCache wraps cache. A non-positive ttl means TTLProgress.
func NewProgressCache(cache *Cache, ttl time.Duration, log *logger.Logger) *ProgressCache {
	if ttl <= 0 {
		ttl = TTLProgress
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("progress-cache"))
	breaker := circuitbreaker.CacheBreaker(
		func(err error) bool { return err != nil && !errors.Is(err, ErrCacheMiss) },
		func(name string, from, to circuitbreaker.State) {
			log.Warn("cache breaker state changed",
				logger.String("breaker", name), logger.String("from", from.String()), logger.String("to", to.String()))
		},
	)
	return &ProgressCache{cache: cache, ttl: ttl, breaker: breaker, log: log}
}

// GetProgress returns the cached payload and true on a hit. On a miss it
// returns the resident's snapshot version for PutProgress, or -1 when Redis
// could not be read.
func (p *ProgressCache) GetProgress(ctx context.Context, residentID shared.ResidentID) ([]byte, int64, bool) {
	var (
		data    []byte
		version int64
	)
	id := residentID.String()
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, version, err = p.cache.GetVersioned(ctx, ProgressKey(id), ProgressVersionKey(id))
		return err
	})
	switch {
	case err == nil:
		return data, version, true
	case errors.Is(err, ErrCacheMiss):
		return nil, version, false
	default:
		p.log.Debug("progress cache read skipped", logger.ResidentID(id), logger.Err(err))
		return nil, -1, false
	}
}

// PutProgress stores payload for the configured TTL unless the snapshot was
// invalidated after version was read.
func (p *ProgressCache) PutProgress(ctx context.Context, residentID shared.ResidentID, version int64, payload []byte) {
	if version < 0 {
		return
	}
	id := residentID.String()
	var stored bool
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		stored, err = p.cache.SetIfVersion(ctx, ProgressKey(id), ProgressVersionKey(id), version, payload, p.ttl)
		return err
	})
	switch {
	case err != nil:
		p.log.Debug("progress cache write skipped", logger.ResidentID(id), logger.Err(err))
	case !stored:
		p.log.Debug("progress cache write superseded", logger.ResidentID(id), logger.Int64("version", version))
	}
}

// InvalidateProgress drops the resident's snapshot and bumps its version so
// computations started before the call cannot store their result.
func (p *ProgressCache) InvalidateProgress(ctx context.Context, residentID shared.ResidentID) error {
	id := residentID.String()
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.cache.Bump(ctx, ProgressKey(id), ProgressVersionKey(id))
	})
}

// BreakerState reports the breaker state for health output.
func (p *ProgressCache) BreakerState() circuitbreaker.State {
	return p.breaker.State()
}
