package asidecache

import (
	"context"
	"strings"
	"time"

	"github.com/unkn0wn-root/asidecache/internal/wire"
)

// SweepReport summarizes one proactive cleanup pass.
type SweepReport struct {
	Scanned int
	Deleted int
}

// Sweep walks every entry under the cache prefix and deletes the ones that
// are unparsable or logically expired - exactly the keys Get would refuse -
// so a pass can never remove a value a concurrent Get would have honored.
// Individual read/parse problems skip that key, they never abort the pass.
func (c *cache[V]) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	if !c.enabled {
		return rep, nil
	}

	lockPrefix := c.prefix + ":lock:"
	healthPrefix := c.prefix + ":health:"
	now := time.Now()

	batch := make([]string, 0, c.sweepBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.st.Del(ctx, batch...); err != nil {
			c.hooks.StoreError("del", err)
			return err
		}
		rep.Deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	scanErr := c.st.Scan(ctx, c.prefix+":*", func(k string) error {
		if strings.HasPrefix(k, lockPrefix) || strings.HasPrefix(k, healthPrefix) {
			return nil // ephemeral machinery, expires on its own
		}
		rep.Scanned++

		raw, ok, err := c.st.Get(ctx, k)
		if err != nil || !ok {
			return nil // skip, not abort
		}
		env, err := wire.Decode(raw)
		if err != nil || env.Expired(now) {
			batch = append(batch, k)
		}
		if len(batch) >= c.sweepBatch {
			return flush()
		}
		return nil
	})
	if scanErr == nil {
		scanErr = flush()
	}

	c.hooks.SweepCompleted(rep.Scanned, rep.Deleted)
	c.log.Info("sweep completed", Fields{"scanned": rep.Scanned, "deleted": rep.Deleted})
	return rep, scanErr
}

func (c *cache[V]) sweepLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			if _, err := c.Sweep(context.Background()); err != nil {
				c.log.Warn("sweep pass failed", Fields{"err": err})
			}
		case <-c.stopCh:
			return
		}
	}
}
