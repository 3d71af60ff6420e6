package ipintel

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/tidegate/internal/types"
)

// MaxLookupTimeout bounds the outbound lookup. It is the only bounded wait
// on the decision path.
const MaxLookupTimeout = 2 * time.Second

// Fetcher performs an uncached lookup.
type Fetcher interface {
	Fetch(ctx context.Context, ip string) (Record, error)
}

// Cache stores records keyed by IP. Get returns types.ErrCacheMiss when no
// record exists. Each Put is a self-contained last-write-wins write.
type Cache interface {
	Get(ctx context.Context, ip string) (Record, error)
	Put(ctx context.Context, ip string, rec Record) error
}

// Resolver implements cache-then-fetch resolution with permanent fallback
// caching. Safe for concurrent use; concurrent first sightings of one IP may
// both fetch.
type Resolver struct {
	fetcher Fetcher
	cache   Cache
	timeout time.Duration
	logger  zerolog.Logger
}

// NewResolver creates a resolver. Timeouts outside (0, MaxLookupTimeout]
// are clamped to MaxLookupTimeout.
func NewResolver(fetcher Fetcher, cache Cache, timeout time.Duration, logger zerolog.Logger) *Resolver {
	if timeout <= 0 || timeout > MaxLookupTimeout {
		timeout = MaxLookupTimeout
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		timeout: timeout,
		logger:  logger.With().Str("component", "ipintel").Logger(),
	}
}

// Resolve returns the record for ip. Never fails: lookup errors, non-success
// responses and timeouts produce a cached fallback record. An empty ip
// yields an uncached fallback.
func (r *Resolver) Resolve(ctx context.Context, ip string) Record {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return Fallback("")
	}

	rec, err := r.cache.Get(ctx, ip)
	if err == nil {
		return rec
	}
	if !errors.Is(err, types.ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("ip", ip).Msg("ip cache read failed")
	}

	rec = r.fetch(ctx, ip)
	if err := r.cache.Put(ctx, ip, rec); err != nil {
		r.logger.Warn().Err(err).Str("ip", ip).Msg("ip cache write failed")
	}
	return rec
}

// fetch calls the provider with a bounded timeout detached from caller
// cancellation, so a dropped client connection cannot poison the cache.
func (r *Resolver) fetch(ctx context.Context, ip string) Record {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	start := time.Now()
	rec, err := r.fetcher.Fetch(fetchCtx, ip)
	if err != nil {
		r.logger.Warn().Err(err).Str("ip", ip).Dur("elapsed", time.Since(start)).Msg("ip lookup failed, caching fallback")
		return Fallback(ip)
	}
	if !rec.Succeeded() {
		r.logger.Warn().Str("ip", ip).Str("status", rec.Status).Str("message", rec.Message).Msg("ip lookup unsuccessful, caching fallback")
		return Fallback(ip)
	}
	if rec.Query == "" {
		rec.Query = ip
	}
	r.logger.Debug().Str("ip", ip).Str("country", rec.CountryCode).Dur("elapsed", time.Since(start)).Msg("ip lookup")
	return rec
}
