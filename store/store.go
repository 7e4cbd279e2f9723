// Package store defines the key-value abstraction used by asidecache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no prepended or
// appended metadata, no re-encoding, no mutation). If a store performs
// internal transforms (e.g., compression), they MUST be fully reversed so that
// the bytes returned by Get are identical to the bytes provided to Set.
//
// Stores are pure I/O: no retry or backoff logic lives here. Callers treat a
// store outage as a cache miss on read and drop writes.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs, an atomic claim primitive and a
// cursor-based pattern scan. Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX atomically stores value iff the key is absent. Returns true iff
	// this call created the key.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes keys (best-effort). Accepting a batch lets callers delete
	// in bounded chunks instead of one blocking bulk operation.
	Del(ctx context.Context, keys ...string) error

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Scan streams keys matching pattern to fn via a non-blocking cursor;
	// implementations must not hold the full key set in memory. A non-nil
	// error from fn aborts the scan and is returned as-is.
	Scan(ctx context.Context, pattern string, fn func(key string) error) error

	// Close releases resources.
	Close(ctx context.Context) error
}
