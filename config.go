package asidecache

import "time"

// Namespace partitions the cache key space. Each namespace carries its own
// default TTL; namespaces outside the policy table fall back to the global
// default, so TTL resolution is total.
type Namespace string

const (
	NSGeneral        Namespace = "general"
	NSLookupSearch   Namespace = "lookup:search"
	NSLookupDetail   Namespace = "lookup:detail"
	NSComputedResult Namespace = "computed:result"
	NSFeedList       Namespace = "feed:list"
	NSFeedDetail     Namespace = "feed:detail"
	NSStatsPeriod    Namespace = "stats:period"
	NSSession        Namespace = "session"
)

// TTLPolicy maps namespaces to their default TTLs. Policies are plain values:
// build one per cache instance instead of sharing a mutable table.
type TTLPolicy map[Namespace]time.Duration

// DefaultTTLPolicy returns the canonical per-namespace TTL table.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		NSGeneral:        15 * time.Minute,
		NSLookupSearch:   12 * time.Hour,
		NSLookupDetail:   12 * time.Hour,
		NSComputedResult: 12 * time.Hour,
		NSFeedList:       15 * time.Minute,
		NSFeedDetail:     24 * time.Hour,
		NSStatsPeriod:    15 * time.Minute,
		NSSession:        15 * time.Minute,
	}
}

// Resolve returns the effective TTL for ns: custom when positive, the
// namespace default when configured, fallback otherwise.
func (p TTLPolicy) Resolve(ns Namespace, custom, fallback time.Duration) time.Duration {
	if custom > 0 {
		return custom
	}
	if d, ok := p[ns]; ok && d > 0 {
		return d
	}
	return fallback
}
