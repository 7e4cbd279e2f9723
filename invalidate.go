package asidecache

import (
	"context"
)

// InvalidateNamespace deletes every entry under ns, optionally narrowed to a
// scope prefix (keys written as "<scope>:<rest>"). Deletes run in batches of
// SweepBatch so the store is never asked for one huge blocking operation.
func (c *cache[V]) InvalidateNamespace(ctx context.Context, ns Namespace, scope string) (int, error) {
	if !c.enabled {
		return 0, nil
	}

	pattern := c.prefix + ":" + string(ns) + ":"
	if scope != "" {
		pattern += scope + ":"
	}
	pattern += "*"

	deleted := 0
	batch := make([]string, 0, c.sweepBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.st.Del(ctx, batch...); err != nil {
			return err
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	var delErr error
	scanErr := c.st.Scan(ctx, pattern, func(k string) error {
		batch = append(batch, k)
		if len(batch) >= c.sweepBatch {
			if err := flush(); err != nil {
				delErr = err
				return err
			}
		}
		return nil
	})
	if delErr != nil {
		scanErr = nil // the scan aborted because our flush failed
	}
	if scanErr == nil && delErr == nil {
		if err := flush(); err != nil {
			delErr = err
		}
	}

	if scanErr != nil || delErr != nil {
		if delErr != nil {
			c.hooks.StoreError("del", delErr)
		} else {
			c.hooks.StoreError("get", scanErr)
		}
		return deleted, &InvalidateError{Namespace: ns, Scope: scope, ScanErr: scanErr, DelErr: delErr}
	}

	c.log.Debug("namespace invalidated", Fields{"ns": ns, "scope": scope, "deleted": deleted})
	return deleted, nil
}
