package fanout

import (
	"context"
	"time"

	"github.com/unkn0wn-root/asidecache"
)

// CacheBacked wires a typed call into b's Run/LoadLast/SaveLast through a
// cache-aside instance: successes are written through with ttl so cool-down
// skips can serve the last good value from ns/key.
func CacheBacked[V any](b Branch, cc asidecache.Cache[V], ns asidecache.Namespace, key string, ttl time.Duration, fn func(ctx context.Context) (V, error)) Branch {
	b.Run = func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	b.LoadLast = func(ctx context.Context) (any, bool) {
		v, ok := cc.Get(ctx, ns, key)
		if !ok {
			return nil, false
		}
		return v, true
	}
	b.SaveLast = func(ctx context.Context, v any) {
		tv, ok := v.(V)
		if !ok {
			return
		}
		_ = cc.Set(ctx, ns, key, tv, ttl)
	}
	return b
}
