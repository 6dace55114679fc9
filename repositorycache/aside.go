package repositorycache

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-settings-store/cache"
	"github.com/goliatone/go-settings-store/pkg/storeerr"
)

const (
	instrumentationName = "github.com/goliatone/go-settings-store/repositorycache"
	stripeCount         = 64
)

// FetchFn loads the current value of a key from the durable store.
// found=false means the key does not exist; err means the store failed.
type FetchFn func(ctx context.Context) (value string, found bool, err error)

// PersistFn writes a new version to the durable store and returns it.
type PersistFn func(ctx context.Context) (version int64, err error)

// Option configures an Aside.
type Option func(*Aside)

// WithLogger sets the logger used for cache fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aside) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTracer overrides the tracer. Defaults to the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Aside) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// Stats is a snapshot of the Aside counters.
type Stats struct {
	Hits             int64
	Misses           int64
	Populates        int64
	SkippedPopulates int64
	SkippedWrites    int64
	CacheErrors      int64
}

// fetchResult wraps the tuple result of a FetchFn for singleflight
type fetchResult struct {
	value string
	found bool
}

// Aside keeps a cache consistent with a durable store without making the
// durable store depend on the cache.
//
// Reads check the cache first and fall back to the durable store, populating
// the cache on a found value. Writes commit to the durable store first and only
// then overwrite the cache entry. Cache failures are logged and recovered.
//
// A miss that started before a concurrent write committed never overwrites the
// writer's cache entry: every key carries a write generation, and a populate is
// dropped when the generation moved while the durable load was in flight.
// Likewise a writer never replaces an entry written for a higher version.
type Aside struct {
	store  cache.Store
	logger *slog.Logger
	tracer trace.Tracer

	flight  singleflight.Group
	gens    *xsync.MapOf[string, uint64]
	written *xsync.MapOf[string, int64]
	stripes [stripeCount]sync.Mutex

	hits        *xsync.Counter
	misses      *xsync.Counter
	populates   *xsync.Counter
	skipped     *xsync.Counter
	staleWrites *xsync.Counter
	cacheErrors *xsync.Counter
}

// New creates an Aside around the given cache store.
func New(store cache.Store, opts ...Option) *Aside {
	a := &Aside{
		store:       store,
		logger:      slog.Default(),
		tracer:      otel.Tracer(instrumentationName),
		gens:        xsync.NewMapOf[string, uint64](),
		written:     xsync.NewMapOf[string, int64](),
		hits:        xsync.NewCounter(),
		misses:      xsync.NewCounter(),
		populates:   xsync.NewCounter(),
		skipped:     xsync.NewCounter(),
		staleWrites: xsync.NewCounter(),
		cacheErrors: xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Read returns the value for key, from the cache when possible.
// On a miss fetch is called; a found value is cached, absence is not.
// Concurrent misses on the same key share one fetch. The fetch is not
// cancelled with the caller that started it, but every caller stops waiting
// when its own ctx is done.
func (a *Aside) Read(ctx context.Context, key string, fetch FetchFn) (string, bool, error) {
	ctx, span := a.tracer.Start(ctx, "repositorycache.Read", trace.WithAttributes(
		attribute.String("cache.key", key),
	))
	defer span.End()

	if value, ok := a.Lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return value, true, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// the shared load outlives any single caller; each caller waits on its own ctx
	ch := a.flight.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		gen := a.generation(key)

		value, found, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if found {
			a.populate(fctx, key, value, gen)
		}
		return fetchResult{value: value, found: found}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "read cancelled")
		return "", false, ctx.Err()
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "fetch failed")
		return "", false, res.Err
	}

	r := res.Val.(fetchResult)
	return r.value, r.found, nil
}

// Lookup probes the cache only. A cache failure is logged and reported as a miss.
func (a *Aside) Lookup(ctx context.Context, key string) (string, bool) {
	value, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.cacheFailure(ctx, "get", key, err)
		a.misses.Inc()
		return "", false
	}
	if !ok {
		a.misses.Inc()
		return "", false
	}
	a.hits.Inc()
	return value, true
}

// Write runs persist and, only if it succeeds, overwrites the cache entry for
// key with cached. The durable version is returned. A failed persist leaves the
// cache untouched.
func (a *Aside) Write(ctx context.Context, key, cached string, persist PersistFn) (int64, error) {
	ctx, span := a.tracer.Start(ctx, "repositorycache.Write", trace.WithAttributes(
		attribute.String("cache.key", key),
	))
	defer span.End()

	version, err := persist(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("store.version", version))

	a.Refresh(ctx, key, cached, version)
	return version, nil
}

// Refresh overwrites the cache entry for a value that is already committed at
// version. It is used after a transaction commits several rows at once. An
// entry already written for a higher version is kept; version 0 always
// overwrites.
func (a *Aside) Refresh(ctx context.Context, key, value string, version int64) {
	mu := a.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	if version > 0 {
		if last, ok := a.written.Load(key); ok && version < last {
			a.staleWrites.Inc()
			return
		}
		a.written.Store(key, version)
	}

	a.gens.Store(key, a.generation(key)+1)
	if err := a.store.Set(ctx, key, value); err != nil {
		a.cacheFailure(ctx, "set", key, err)
	}
}

// Invalidate drops the cache entry for key so the next Read reloads it.
func (a *Aside) Invalidate(ctx context.Context, key string) {
	mu := a.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	a.gens.Store(key, a.generation(key)+1)
	if err := a.store.Delete(ctx, key); err != nil {
		a.cacheFailure(ctx, "delete", key, err)
	}
}

// InvalidatePrefix drops every cache entry whose key starts with prefix and
// returns how many keys this Aside had tracked under it. Stores implementing
// cache.PrefixDeleter are cleared in one call, others key by key.
func (a *Aside) InvalidatePrefix(ctx context.Context, prefix string) int {
	var keys []string
	a.gens.Range(func(key string, _ uint64) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})

	for _, key := range keys {
		mu := a.stripe(key)
		mu.Lock()
		a.gens.Store(key, a.generation(key)+1)
		mu.Unlock()
	}

	if pd, ok := a.store.(cache.PrefixDeleter); ok {
		if err := pd.DeleteByPrefix(ctx, prefix); err != nil {
			a.cacheFailure(ctx, "delete_prefix", prefix, err)
		}
		return len(keys)
	}

	for _, key := range keys {
		if err := a.store.Delete(ctx, key); err != nil {
			a.cacheFailure(ctx, "delete", key, err)
		}
	}
	return len(keys)
}

// Stats returns a snapshot of the hit/miss counters.
func (a *Aside) Stats() Stats {
	return Stats{
		Hits:             a.hits.Value(),
		Misses:           a.misses.Value(),
		Populates:        a.populates.Value(),
		SkippedPopulates: a.skipped.Value(),
		SkippedWrites:    a.staleWrites.Value(),
		CacheErrors:      a.cacheErrors.Value(),
	}
}

// populate caches a value loaded on a miss unless a writer moved the key's
// generation since gen was observed.
func (a *Aside) populate(ctx context.Context, key, value string, gen uint64) {
	mu := a.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	if a.generation(key) != gen {
		a.skipped.Inc()
		return
	}
	a.gens.LoadOrStore(key, gen)
	if err := a.store.Set(ctx, key, value); err != nil {
		a.cacheFailure(ctx, "set", key, err)
		return
	}
	a.populates.Inc()
}

func (a *Aside) generation(key string) uint64 {
	gen, _ := a.gens.Load(key)
	return gen
}

func (a *Aside) stripe(key string) *sync.Mutex {
	return &a.stripes[xxhash.Sum64String(key)%stripeCount]
}

func (a *Aside) cacheFailure(ctx context.Context, op, key string, err error) {
	a.cacheErrors.Inc()
	a.logger.WarnContext(ctx, "cache unavailable, falling back to durable store",
		slog.String("operation", op),
		slog.String("key", key),
		slog.Any("error", storeerr.CacheUnavailable(err, op, key)),
	)
}
