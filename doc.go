// Package asidecache implements a cache-aside manager over a shared key-value
// store, with stampede protection, namespace-scoped invalidation, proactive
// expiry sweeping and a health probe. The companion fanout package builds a
// resilient fan-out aggregator on the same primitives.
//
// Components:
//   - store.Store: byte store with TTL, atomic claim-if-absent and pattern
//     scan (Redis-backed in store/redis, in-process in store/memory).
//   - codec.Codec[V]: (de)serializes V <-> []byte.
//   - Cache[V]: get/set/getOrSet with per-namespace TTL policy.
//
// Keys:
//
//	<prefix>:<namespace>:<key>       - cache entries (wire-framed envelopes)
//	<prefix>:lock:<namespace>:<key>  - generation locks (short TTL, owner-less)
//	<prefix>:health:probe:<nonce>    - health probe round trips
//
// Every entry carries its own storedAt/ttl envelope, so logical expiry is
// enforced on read independently of whatever expiry the backing store applies.
// Corrupt or logically expired entries are deleted on the way out and surface
// as a miss.
//
// Stampede protection:
//
//	v, err := cc.GetOrSet(ctx, asidecache.NSComputedResult, key, 0, loadFromDB)
//
// collapses concurrent misses per key: same-process callers coalesce in a
// singleflight group, cross-process callers coordinate through a
// claim-if-absent lock with a bounded poll and a local recompute fallback.
// The lock is best-effort mutual exclusion, not a strict mutex: under holder
// crash or poll timeout a small bounded number of duplicate computations may
// occur in exchange for bounded latency.
package asidecache
