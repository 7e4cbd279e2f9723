package asidecache

import (
	"bytes"
	"context"
	"strconv"
	"time"
)

const probeTTL = 30 * time.Second

// SelfTest writes a throwaway key, reads it back, deletes it and reports
// whether the full round trip succeeded. A disabled cache touches no store
// and trivially passes.
func (c *cache[V]) SelfTest(ctx context.Context) bool {
	if !c.enabled {
		return true
	}
	nonce := strconv.FormatInt(time.Now().UnixNano(), 36)
	k := c.prefix + ":health:probe:" + nonce
	payload := []byte("ping:" + nonce)

	if err := c.st.Set(ctx, k, payload, probeTTL); err != nil {
		c.hooks.StoreError("health", err)
		return false
	}
	raw, ok, err := c.st.Get(ctx, k)
	if err != nil || !ok || !bytes.Equal(raw, payload) {
		if err != nil {
			c.hooks.StoreError("health", err)
		}
		return false
	}
	if err := c.st.Del(ctx, k); err != nil {
		c.hooks.StoreError("health", err)
		return false
	}
	return true
}
