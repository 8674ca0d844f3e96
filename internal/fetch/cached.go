// Package fetch wraps arbitrary asynchronous fetch operations with a
// query-keyed TTL cache, exponential backoff on upstream rate limiting, and
// single-flight de-duplication of concurrent identical requests.
package fetch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mkaplon/foresight-backend/internal/cache"
	"github.com/mkaplon/foresight-backend/internal/httputil"
)

const (
	DefaultTTL         = 30 * time.Second
	DefaultMaxAttempts = 3
)

type GroupConfig struct {
	DefaultTTL  time.Duration // freshness window for cached results
	MaxAttempts int           // total fetch attempts on rate limiting
	BaseDelay   time.Duration // first backoff step, doubled per attempt
}

// Group is a cached, retrying fetch group for values of type T. Each Group
// owns an independent cache; callers that aggregate at a coarser granularity
// layer their own longer-lived cache on top.
type Group[T any] struct {
	cache       *cache.TTL[T]
	sf          singleflight.Group
	maxAttempts int
	baseDelay   time.Duration
}

func NewGroup[T any](cfg GroupConfig) *Group[T] {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	return &Group[T]{
		cache:       cache.NewTTL[T](cfg.DefaultTTL),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
	}
}

// Options override group defaults for a single call. Zero values fall back
// to the group configuration.
type Options struct {
	TTL         time.Duration
	MaxAttempts int
}

// Do returns the cached value for key when fresh; otherwise it invokes fn,
// stores the result, and returns it. Rate-limit failures are retried with
// 1s, 2s, 4s, ... backoff; any other failure, and a rate limit that outlives
// the attempt budget, propagates to the caller unchanged. Concurrent calls
// for the same cold key share a single upstream fetch.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	return g.DoOpts(ctx, key, fn, Options{})
}

func (g *Group[T]) DoOpts(ctx context.Context, key string, fn func(context.Context) (T, error), opts Options) (T, error) {
	var v T
	var ok bool
	if opts.TTL > 0 {
		v, ok = g.cache.GetWithTTL(key, opts.TTL)
	} else {
		v, ok = g.cache.Get(key)
	}
	if ok {
		fmt.Printf("[FETCH] Cache hit for %s\n", key)
		return v, nil
	}
	fmt.Printf("[FETCH] Cache miss for %s, fetching...\n", key)

	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = g.maxAttempts
	}

	res, err, shared := g.sf.Do(key, func() (any, error) {
		return g.fetchWithRetry(ctx, key, fn, attempts)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		fmt.Printf("[FETCH] Coalesced concurrent request for %s\n", key)
	}
	return res.(T), nil
}

// Forget drops the cached value for key and any in-flight de-duplication
// slot, forcing the next Do to hit the upstream.
func (g *Group[T]) Forget(key string) {
	g.cache.Delete(key)
	g.sf.Forget(key)
}

func (g *Group[T]) Clear() {
	g.cache.Clear()
}

func (g *Group[T]) fetchWithRetry(ctx context.Context, key string, fn func(context.Context) (T, error), attempts int) (T, error) {
	var zero T
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			g.cache.Set(key, v)
			return v, nil
		}

		if !httputil.IsRateLimited(err) || attempt == attempts-1 {
			return zero, err
		}

		delay := g.baseDelay << attempt
		fmt.Printf("[FETCH] Rate limited on %s (attempt %d/%d) — backing off %s\n",
			key, attempt+1, attempts, delay)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("fetch %s: attempt budget exhausted", key)
}
