package asidecache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "expired", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A store operation failed and was degraded: reads become misses,
	// writes are dropped. op ∈ {"get", "set", "del", "lock", "unlock", "health"}
	StoreError(op string, err error)

	// The lock wait ended without a cached value (poll budget exhausted,
	// holder vanished without writing, or a store error mid-wait) and the
	// value was computed locally (accepted duplicate work).
	LockFallback(storageKey string)

	// A fan-out branch timed out and wrote a cool-down skip flag.
	SkipFlag(flagKey string)

	// One sweeper pass finished.
	SweepCompleted(scanned, deleted int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)  {}
func (NopHooks) StoreError(string, error) {}
func (NopHooks) LockFallback(string)      {}
func (NopHooks) SkipFlag(string)          {}
func (NopHooks) SweepCompleted(int, int)  {}
