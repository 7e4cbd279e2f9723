// Package asynchook decouples hook callbacks from hot paths: events are
// queued to a bounded channel and replayed on worker goroutines. When the
// queue is full events are dropped, never blocked on.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cc, _ := asidecache.New[Profile](asidecache.Options[Profile]{
//	    Store: store,
//	    Codec: codec.JSON[Profile]{},
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/asidecache"
)

type Hooks struct {
	inner asidecache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ asidecache.Hooks = (*Hooks)(nil)

func New(inner asidecache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(k, r string)          { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) StoreError(op string, e error) { h.try(func() { h.inner.StoreError(op, e) }) }
func (h *Hooks) LockFallback(k string)         { h.try(func() { h.inner.LockFallback(k) }) }
func (h *Hooks) SkipFlag(k string)             { h.try(func() { h.inner.SkipFlag(k) }) }
func (h *Hooks) SweepCompleted(scanned, deleted int) {
	h.try(func() { h.inner.SweepCompleted(scanned, deleted) })
}
