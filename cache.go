package asidecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/asidecache/codec"
	"github.com/unkn0wn-root/asidecache/internal/wire"
	st "github.com/unkn0wn-root/asidecache/store"
)

const (
	defaultPrefix       = "asidecache"
	defaultTTL          = 15 * time.Minute
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultPollBudget   = 10 * time.Second
	defaultSweep        = 2 * time.Hour
	defaultSweepBatch   = 200

	// lockMarker is the sentinel value stored under lock keys. Existence of
	// the key is what matters; no owner identity is tracked.
	lockMarker = "generating"
)

type cache[V any] struct {
	st    st.Store
	codec c.Codec[V]
	log   Logger
	hooks Hooks

	enabled bool
	prefix  string
	policy  TTLPolicy

	defaultTTL   time.Duration
	lockTTL      time.Duration
	pollInterval time.Duration
	pollBudget   time.Duration
	sweepBatch   int

	// collapses same-process concurrent misses before the store-level lock
	sf singleflight.Group

	// background sweeper
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("asidecache: store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("asidecache: codec is required")
	}

	cc := &cache[V]{
		st:      opts.Store,
		codec:   opts.Codec,
		enabled: !opts.Disabled,
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.prefix = coalesce[string](opts.AppPrefix, defaultPrefix)
	cc.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	cc.lockTTL = coalesce[time.Duration](opts.LockTTL, defaultLockTTL)
	cc.pollInterval = coalesce[time.Duration](opts.PollInterval, defaultPollInterval)
	cc.pollBudget = coalesce[time.Duration](opts.PollBudget, defaultPollBudget)
	cc.sweepBatch = coalesce[int](opts.SweepBatch, defaultSweepBatch)

	if opts.Policy != nil {
		cc.policy = opts.Policy
	} else {
		cc.policy = DefaultTTLPolicy()
	}

	sweepInterval := opts.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = defaultSweep
	}
	if cc.enabled && sweepInterval > 0 {
		cc.ticker = time.NewTicker(sweepInterval)
		cc.stopCh = make(chan struct{})
		cc.closeWg.Add(1)
		go cc.sweepLoop()
	}
	return cc, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.closeWg.Wait()
			if c.ticker != nil {
				c.ticker.Stop()
			}
		}
	})
	if c.st != nil {
		return c.st.Close(ctx)
	}
	return nil
}

func (c *cache[V]) Get(ctx context.Context, ns Namespace, key string) (V, bool) {
	var zero V
	if !c.enabled {
		return zero, false
	}
	k := c.entryKey(ns, key)
	raw, ok, err := c.st.Get(ctx, k)
	if err != nil {
		// store unavailable => miss; the caller recomputes
		c.hooks.StoreError("get", err)
		c.log.Warn("store read failed; treating as miss", Fields{"key": k, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	env, err := wire.Decode(raw)
	if err != nil {
		c.selfHeal(ctx, k, "corrupt")
		return zero, false
	}
	// logical expiry is authoritative even when the store kept the bytes
	if env.Expired(time.Now()) {
		c.selfHeal(ctx, k, "expired")
		return zero, false
	}
	v, err := c.codec.Decode(env.Payload)
	if err != nil {
		c.selfHeal(ctx, k, "value_decode")
		return zero, false
	}
	return v, true
}

func (c *cache[V]) Set(ctx context.Context, ns Namespace, key string, value V, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	eff := c.policy.Resolve(ns, ttl, c.defaultTTL)
	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	// round sub-second TTLs up so the envelope never claims zero lifetime
	ttlSec := uint32((eff + time.Second - 1) / time.Second)
	raw := wire.Encode(time.Now().UnixMilli(), ttlSec, payload)

	k := c.entryKey(ns, key)
	if err := c.st.Set(ctx, k, raw, eff); err != nil {
		// dropped on purpose: caching is an optimization, not a dependency
		c.hooks.StoreError("set", err)
		c.log.Warn("store write failed; dropped", Fields{"key": k, "err": err})
	}
	return nil
}

func (c *cache[V]) GetOrSet(ctx context.Context, ns Namespace, key string, ttl time.Duration, factory Factory[V]) (V, error) {
	var zero V
	if !c.enabled {
		return factory(ctx)
	}
	if v, ok := c.Get(ctx, ns, key); ok {
		return v, nil
	}
	res, err, _ := c.sf.Do(c.entryKey(ns, key), func() (any, error) {
		return c.fill(ctx, ns, key, ttl, factory)
	})
	if err != nil {
		return zero, err
	}
	return res.(V), nil
}

// fill runs the cross-process part of GetOrSet: claim the generation lock or
// wait for whoever holds it.
func (c *cache[V]) fill(ctx context.Context, ns Namespace, key string, ttl time.Duration, factory Factory[V]) (V, error) {
	var zero V
	lk := c.lockKey(ns, key)

	claimed, err := c.st.SetNX(ctx, lk, []byte(lockMarker), c.lockTTL)
	if err != nil {
		// store outage: no coordination possible, compute locally
		c.hooks.StoreError("lock", err)
		c.log.Warn("lock claim failed; computing locally", Fields{"key": lk, "err": err})
		return c.computeAndSet(ctx, ns, key, ttl, factory)
	}

	if claimed {
		defer func() {
			if derr := c.st.Del(context.WithoutCancel(ctx), lk); derr != nil {
				c.hooks.StoreError("unlock", derr)
			}
		}()
		// another caller may have filled between our miss and the claim
		if v, ok := c.Get(ctx, ns, key); ok {
			return v, nil
		}
		v, ferr := factory(ctx)
		if ferr != nil {
			return zero, ferr // release the lock, never cache a failure
		}
		_ = c.Set(ctx, ns, key, v, ttl)
		return v, nil
	}

	return c.waitOrCompute(ctx, ns, key, lk, ttl, factory)
}

// waitOrCompute polls for the lock holder's result on a fixed interval. The
// interval is deliberately not exponential: worst-case latency stays
// predictable. When the wait ends without a value (budget exhausted, lock
// vanished with nothing written, store error mid-wait) the value is computed
// locally - duplicate work is accepted in exchange for bounded latency.
func (c *cache[V]) waitOrCompute(ctx context.Context, ns Namespace, key, lk string, ttl time.Duration, factory Factory[V]) (V, error) {
	var zero V
	deadline := time.Now().Add(c.pollBudget)
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-tick.C:
		}
		if v, ok := c.Get(ctx, ns, key); ok {
			return v, nil
		}
		held, err := c.st.Exists(ctx, lk)
		if err != nil {
			c.hooks.StoreError("lock", err)
			break
		}
		if !held {
			// holder finished or crashed without writing; one last look
			if v, ok := c.Get(ctx, ns, key); ok {
				return v, nil
			}
			break
		}
	}

	c.hooks.LockFallback(c.entryKey(ns, key))
	c.log.Debug("lock wait ended without a value; computing locally", Fields{"key": lk})
	return c.computeAndSet(ctx, ns, key, ttl, factory)
}

func (c *cache[V]) computeAndSet(ctx context.Context, ns Namespace, key string, ttl time.Duration, factory Factory[V]) (V, error) {
	var zero V
	v, err := factory(ctx)
	if err != nil {
		return zero, err
	}
	_ = c.Set(ctx, ns, key, v, ttl)
	return v, nil
}

func (c *cache[V]) TTLFor(ns Namespace) time.Duration {
	return c.policy.Resolve(ns, 0, c.defaultTTL)
}

func (c *cache[V]) selfHeal(ctx context.Context, storageKey, reason string) {
	if err := c.st.Del(ctx, storageKey); err != nil {
		c.hooks.StoreError("del", err)
		return
	}
	c.hooks.SelfHeal(storageKey, reason)
	c.log.Debug("evicted invalid entry", Fields{"key": storageKey, "reason": reason})
}

func (c *cache[V]) entryKey(ns Namespace, key string) string {
	return c.prefix + ":" + string(ns) + ":" + key
}

func (c *cache[V]) lockKey(ns Namespace, key string) string {
	return c.prefix + ":lock:" + string(ns) + ":" + key
}
