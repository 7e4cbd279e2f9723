package asidecache

import (
	"context"
	"fmt"
	"testing"
	"time"

	c "github.com/unkn0wn-root/asidecache/codec"
	"github.com/unkn0wn-root/asidecache/internal/wire"
	"github.com/unkn0wn-root/asidecache/store/memory"
)

func seedExpired(t *testing.T, mp *memory.Store, storageKey string) {
	t.Helper()
	payload, err := c.JSON[record]{}.Encode(record{ID: "old"})
	if err != nil {
		t.Fatal(err)
	}
	raw := wire.Encode(time.Now().Add(-time.Hour).UnixMilli(), 60, payload)
	// store-level TTL deliberately generous: logical expiry must win
	if err := mp.Set(context.Background(), storageKey, raw, time.Hour); err != nil {
		t.Fatal(err)
	}
}

func TestSweepRemovesExpiredAndCorruptKeepsFresh(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	defer cc.Close(ctx)
	impl := mustImpl(t, cc)

	for i := 0; i < 3; i++ {
		if err := cc.Set(ctx, NSGeneral, fmt.Sprintf("fresh:%d", i), record{ID: "f"}, 0); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 4; i++ {
		seedExpired(t, mp, impl.entryKey(NSStatsPeriod, fmt.Sprintf("old:%d", i)))
	}
	if err := mp.Set(ctx, impl.entryKey(NSGeneral, "junk"), []byte("garbage"), time.Hour); err != nil {
		t.Fatal(err)
	}
	// lock keys under the prefix must be left alone
	if ok, _ := mp.SetNX(ctx, impl.lockKey(NSGeneral, "busy"), []byte(lockMarker), time.Minute); !ok {
		t.Fatal("seed lock")
	}

	rep, err := cc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Scanned != 8 {
		t.Fatalf("scanned %d entries, want 8", rep.Scanned)
	}
	if rep.Deleted != 5 {
		t.Fatalf("deleted %d entries, want 5 (4 expired + 1 corrupt)", rep.Deleted)
	}

	for i := 0; i < 3; i++ {
		if _, ok := cc.Get(ctx, NSGeneral, fmt.Sprintf("fresh:%d", i)); !ok {
			t.Fatalf("fresh entry %d removed by sweep", i)
		}
	}
	for i := 0; i < 4; i++ {
		if _, ok, _ := mp.Get(ctx, impl.entryKey(NSStatsPeriod, fmt.Sprintf("old:%d", i))); ok {
			t.Fatalf("expired entry %d survived sweep", i)
		}
	}
	if held, _ := mp.Exists(ctx, impl.lockKey(NSGeneral, "busy")); !held {
		t.Fatal("sweep removed a live lock key")
	}
}

func TestSweepDeletesInBoundedBatches(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	rec := &recordingStore{Store: mp}
	cc := newTestCache(t, rec, func(o *Options[record]) { o.SweepBatch = 2 })
	defer cc.Close(ctx)
	impl := mustImpl(t, cc)

	for i := 0; i < 7; i++ {
		seedExpired(t, mp, impl.entryKey(NSGeneral, fmt.Sprintf("old:%d", i)))
	}

	rep, err := cc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Deleted != 7 {
		t.Fatalf("deleted %d, want 7", rep.Deleted)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.batches) == 0 {
		t.Fatal("no delete batches recorded")
	}
	for _, n := range rec.batches {
		if n > 2 {
			t.Fatalf("delete batch of %d exceeds configured size 2", n)
		}
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	defer cc.Close(ctx)
	impl := mustImpl(t, cc)

	seedExpired(t, mp, impl.entryKey(NSGeneral, "old"))
	if _, err := cc.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	rep, err := cc.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Scanned != 0 || rep.Deleted != 0 {
		t.Fatalf("second pass should find nothing, got %+v", rep)
	}
}

func TestInvalidateDeletesInBoundedBatches(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	rec := &recordingStore{Store: mp}
	cc := newTestCache(t, rec, func(o *Options[record]) { o.SweepBatch = 3 })
	defer cc.Close(ctx)

	for i := 0; i < 10; i++ {
		if err := cc.Set(ctx, NSFeedList, fmt.Sprintf("u1:%d", i), record{ID: "x"}, 0); err != nil {
			t.Fatal(err)
		}
	}
	n, err := cc.InvalidateNamespace(ctx, NSFeedList, "u1")
	if err != nil || n != 10 {
		t.Fatalf("invalidate: n=%d err=%v", n, err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, b := range rec.batches {
		if b > 3 {
			t.Fatalf("delete batch of %d exceeds configured size 3", b)
		}
	}
}
