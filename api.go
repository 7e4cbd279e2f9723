package asidecache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/asidecache/codec"
	st "github.com/unkn0wn-root/asidecache/store"
)

// Factory computes a value on a cache miss. Factory errors are the one kind
// of failure GetOrSet propagates: the caller needs to know generation
// genuinely failed. A failed Factory result is never cached.
type Factory[V any] func(ctx context.Context) (V, error)

// Cache is the high-level cache-aside API. V is the caller's value type;
// serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Close(ctx context.Context) error

	// Get returns the cached value for key in ns. A store error, a corrupt
	// entry and a logically expired entry all surface as a plain miss;
	// corrupt and expired entries are deleted on the way out (self-heal).
	Get(ctx context.Context, ns Namespace, key string) (V, bool)

	// Set writes value wrapped in a storedAt/ttl envelope. The effective TTL
	// is resolved as: explicit ttl > namespace default > global default, and
	// is applied both inside the envelope and as the store-level expiry.
	// Store write failures are dropped (caching is an optimization); only
	// encode failures are returned.
	Set(ctx context.Context, ns Namespace, key string, value V, ttl time.Duration) error

	// GetOrSet returns the cached value or computes it via factory with
	// stampede protection: at most one concurrent factory invocation per key
	// under normal conditions, a small bounded number under lock-holder
	// crash or poll timeout.
	GetOrSet(ctx context.Context, ns Namespace, key string, ttl time.Duration, factory Factory[V]) (V, error)

	// TTLFor reports the effective default TTL for ns.
	TTLFor(ns Namespace) time.Duration

	// InvalidateNamespace deletes every entry under ns, optionally narrowed
	// to a scope prefix, in bounded batches. Other scopes are untouched.
	// Returns the number of keys deleted.
	InvalidateNamespace(ctx context.Context, ns Namespace, scope string) (int, error)

	// Sweep makes one proactive cleanup pass over the whole cache prefix,
	// deleting entries that are unparsable or logically expired. It only
	// removes keys Get would already refuse, so it is safe against live
	// traffic at any interleaving.
	Sweep(ctx context.Context) (SweepReport, error)

	// SelfTest round-trips a throwaway key through the store and reports
	// whether the store is usable.
	SelfTest(ctx context.Context) bool
}

// Options tune the cache. Only Store and Codec are required; others have
// sensible defaults. The struct is copied at construction: the cache never
// reads shared mutable state afterwards.
type Options[V any] struct {
	// Required
	Store st.Store
	Codec c.Codec[V]

	AppPrefix     string        // key prefix; "" => "asidecache"
	Policy        TTLPolicy     // per-namespace defaults; nil => DefaultTTLPolicy()
	DefaultTTL    time.Duration // global fallback TTL; 0 => 15m
	LockTTL       time.Duration // generation lock expiry; 0 => 30s
	PollInterval  time.Duration // lock wait poll tick; 0 => 100ms
	PollBudget    time.Duration // max lock wait before local fallback; 0 => 10s
	SweepInterval time.Duration // background sweep period; 0 => 2h, <0 disables
	SweepBatch    int           // scan/delete batch size; 0 => 200
	Logger        Logger        // if nil, NopLogger is used
	Hooks         Hooks         // if nil, NopHooks is used
	Disabled      bool          // default false (enabled)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
