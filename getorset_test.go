package asidecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/asidecache/store/memory"
)

// ==============================
// Stampede protection
// ==============================

// TestGetOrSetCollapsesConcurrentMisses is the core stampede property: 20
// concurrent callers on one cold key must produce a small bounded number of
// factory invocations, never 20.
func TestGetOrSetCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), func(o *Options[record]) {
		o.PollInterval = 10 * time.Millisecond
	})
	defer cc.Close(ctx)

	var calls atomic.Int32
	factory := func(context.Context) (record, error) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		return record{ID: "expensive", Score: 1}, nil
	}

	const workers = 20
	var wg sync.WaitGroup
	results := make([]record, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cc.GetOrSet(ctx, NSComputedResult, "hot", 0, factory)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if results[i].ID != "expensive" {
			t.Fatalf("worker %d got %v", i, results[i])
		}
	}
	if n := calls.Load(); n > 3 {
		t.Fatalf("factory invoked %d times; want a small bounded count (<=3)", n)
	}
}

// TestGetOrSetCrossProcessLock simulates two processes sharing one store:
// the second instance must wait on the first's generation lock and pick up
// the written value instead of recomputing.
func TestGetOrSetCrossProcessLock(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()

	fast := func(o *Options[record]) {
		o.PollInterval = 10 * time.Millisecond
		o.PollBudget = 2 * time.Second
	}
	ccA := newTestCache(t, mp, fast)
	ccB := newTestCache(t, mp, fast)
	// only one Close per shared store
	defer ccA.Close(ctx)

	var callsA, callsB atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ccA.GetOrSet(ctx, NSLookupDetail, "item", 0, func(context.Context) (record, error) {
			callsA.Add(1)
			time.Sleep(150 * time.Millisecond)
			return record{ID: "from-a"}, nil
		})
	}()

	time.Sleep(40 * time.Millisecond) // let A claim the lock
	v, err := ccB.GetOrSet(ctx, NSLookupDetail, "item", 0, func(context.Context) (record, error) {
		callsB.Add(1)
		return record{ID: "from-b"}, nil
	})
	<-done

	if err != nil {
		t.Fatalf("B GetOrSet: %v", err)
	}
	if v.ID != "from-a" {
		t.Fatalf("B should receive A's value, got %v", v)
	}
	if callsA.Load() != 1 || callsB.Load() != 0 {
		t.Fatalf("calls A=%d B=%d; want 1/0", callsA.Load(), callsB.Load())
	}
}

// TestGetOrSetFallbackAfterPollBudget exercises the bounded-wait guarantee:
// when the lock holder never writes, the waiter recomputes locally instead of
// blocking forever.
func TestGetOrSetFallbackAfterPollBudget(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()

	var fellBack atomic.Bool
	cc := newTestCache(t, mp, func(o *Options[record]) {
		o.PollInterval = 10 * time.Millisecond
		o.PollBudget = 80 * time.Millisecond
		o.Hooks = fallbackHooks{&fellBack}
	})
	defer cc.Close(ctx)

	impl := mustImpl(t, cc)
	// a crashed holder: lock claimed, value never written
	if ok, err := mp.SetNX(ctx, impl.lockKey(NSGeneral, "stuck"), []byte(lockMarker), time.Minute); err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}

	var calls atomic.Int32
	start := time.Now()
	v, err := cc.GetOrSet(ctx, NSGeneral, "stuck", 0, func(context.Context) (record, error) {
		calls.Add(1)
		return record{ID: "local"}, nil
	})
	if err != nil || v.ID != "local" || calls.Load() != 1 {
		t.Fatalf("fallback: v=%v err=%v calls=%d", v, err, calls.Load())
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fallback took %v; wait must be bounded by the poll budget", elapsed)
	}
	if !fellBack.Load() {
		t.Fatal("LockFallback hook not fired")
	}
	// the locally computed value is cached for the next caller
	if got, ok := cc.Get(ctx, NSGeneral, "stuck"); !ok || got.ID != "local" {
		t.Fatalf("fallback result not cached: ok=%v got=%v", ok, got)
	}
}

type fallbackHooks struct{ fired *atomic.Bool }

func (fallbackHooks) SelfHeal(string, string)    {}
func (fallbackHooks) StoreError(string, error)   {}
func (h fallbackHooks) LockFallback(string)      { h.fired.Store(true) }
func (fallbackHooks) SkipFlag(string)            {}
func (fallbackHooks) SweepCompleted(int, int)    {}

// TestGetOrSetFactoryErrorPropagates: generation failures must reach the
// caller, nothing may be cached, and the lock must be released.
func TestGetOrSetFactoryErrorPropagates(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	defer cc.Close(ctx)

	boom := errors.New("upstream exploded")
	_, err := cc.GetOrSet(ctx, NSGeneral, "k", 0, func(context.Context) (record, error) {
		return record{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}

	if _, ok := cc.Get(ctx, NSGeneral, "k"); ok {
		t.Fatal("failure must not be cached")
	}
	impl := mustImpl(t, cc)
	if held, _ := mp.Exists(ctx, impl.lockKey(NSGeneral, "k")); held {
		t.Fatal("lock not released after factory failure")
	}

	// and the key is computable again immediately
	v, err := cc.GetOrSet(ctx, NSGeneral, "k", 0, func(context.Context) (record, error) {
		return record{ID: "retry"}, nil
	})
	if err != nil || v.ID != "retry" {
		t.Fatalf("retry after failure: v=%v err=%v", v, err)
	}
}

// TestGetOrSetWaiterDetectsVanishedLock: a holder that finishes without
// writing (factory error) frees waiters early via the lock-vanished check.
// The early local recompute still counts as a lock fallback.
func TestGetOrSetWaiterDetectsVanishedLock(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	var fellBack atomic.Bool
	cc := newTestCache(t, mp, func(o *Options[record]) {
		o.PollInterval = 10 * time.Millisecond
		o.PollBudget = 5 * time.Second
		o.Hooks = fallbackHooks{&fellBack}
	})
	defer cc.Close(ctx)

	impl := mustImpl(t, cc)
	lk := impl.lockKey(NSGeneral, "ghost")
	if ok, _ := mp.SetNX(ctx, lk, []byte(lockMarker), time.Minute); !ok {
		t.Fatal("seed lock")
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = mp.Del(ctx, lk) // holder crashes without writing a value
	}()

	start := time.Now()
	v, err := cc.GetOrSet(ctx, NSGeneral, "ghost", 0, func(context.Context) (record, error) {
		return record{ID: "after-ghost"}, nil
	})
	if err != nil || v.ID != "after-ghost" {
		t.Fatalf("v=%v err=%v", v, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("waiter did not react to vanished lock (took %v)", elapsed)
	}
	if !fellBack.Load() {
		t.Fatal("LockFallback hook not fired on the vanished-lock recompute")
	}
}
