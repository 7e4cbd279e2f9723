// Package fanout runs a fixed set of independently-slow, independently-failing
// branches concurrently and joins them into one always-available composite.
// Each branch degrades on its own: a failure or private timeout resolves that
// branch to its sentinel without disturbing siblings, and a timeout engages a
// cool-down skip flag (a short-TTL store entry) so the next runs within the
// window skip the call entirely and serve the last cached value instead.
//
// Skip flags live in the shared store under "<branch>:skip:<callerID>", so the
// suppression survives process restarts and is visible to every replica. The
// mechanism is a deliberately non-adaptive circuit breaker: fixed window, no
// half-open probing, self-healing purely through flag expiry.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/asidecache"
	st "github.com/unkn0wn-root/asidecache/store"
)

// Status classifies how a branch settled.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial" // usable value returned together with an error
	StatusSkipped Status = "skipped" // cool-down flag suppressed the call
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Result carries one branch's settled outcome. Results are returned to the
// caller for observability only; they are never persisted.
type Result struct {
	Name    string
	Status  Status
	Value   any
	Elapsed time.Duration
	Err     error
}

// Composite maps branch name to its settled result. It is always complete:
// every branch passed to Run has an entry, whatever happened to it.
type Composite map[string]Result

// Branch describes one fan-out target. Only Name and Run are required.
type Branch struct {
	Name string

	// Run performs the underlying call. It must honor ctx but is not
	// forcibly cancelled when it loses the race against Timeout: a late
	// success may still be banked via SaveLast, never delivered to the
	// caller who already received the sentinel.
	Run func(ctx context.Context) (any, error)

	Timeout  time.Duration // private deadline; 0 => aggregator default
	CoolDown time.Duration // skip-flag TTL after a timeout; 0 => aggregator default
	Sentinel any           // degraded value served on skip/timeout/error

	// LoadLast returns the last cached result for this branch, if any.
	// Consulted only while the branch is cooling down.
	LoadLast func(ctx context.Context) (any, bool)

	// SaveLast writes a successful result through the cache (best effort)
	// so a later skip has something to serve.
	SaveLast func(ctx context.Context, v any)
}

type Options struct {
	// Store holds the cool-down skip flags. Required.
	Store st.Store

	Logger          asidecache.Logger // nil => NopLogger
	Hooks           asidecache.Hooks  // nil => NopHooks
	DefaultTimeout  time.Duration     // 0 => 2s
	DefaultCoolDown time.Duration     // 0 => 3m
}

type Aggregator struct {
	st       st.Store
	log      asidecache.Logger
	hooks    asidecache.Hooks
	timeout  time.Duration
	coolDown time.Duration
}

func New(opts Options) (*Aggregator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("fanout: store is required")
	}
	a := &Aggregator{
		st:       opts.Store,
		log:      opts.Logger,
		hooks:    opts.Hooks,
		timeout:  opts.DefaultTimeout,
		coolDown: opts.DefaultCoolDown,
	}
	if a.log == nil {
		a.log = asidecache.NopLogger{}
	}
	if a.hooks == nil {
		a.hooks = asidecache.NopHooks{}
	}
	if a.timeout <= 0 {
		a.timeout = 2 * time.Second
	}
	if a.coolDown <= 0 {
		a.coolDown = 3 * time.Minute
	}
	return a, nil
}

// Run executes all branches concurrently and joins only after every branch
// has settled or hit its private deadline (join-all, no ordering guarantee).
// It never panics and never returns an error: a failure in the aggregation
// machinery itself degrades the whole composite to sentinels instead of
// becoming a single point of failure for the caller.
func (a *Aggregator) Run(ctx context.Context, callerID string, branches []Branch) (out Composite) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("aggregation failed; serving degraded composite",
				asidecache.Fields{"caller": callerID, "panic": r})
			out = degraded(branches)
		}
	}()

	results := make([]Result, len(branches))
	var wg sync.WaitGroup
	for i := range branches {
		wg.Add(1)
		go func(i int, b Branch) {
			defer wg.Done()
			results[i] = a.runBranch(ctx, callerID, b)
		}(i, branches[i])
	}
	wg.Wait()

	out = make(Composite, len(results))
	for _, r := range results {
		out[r.Name] = r
	}
	return out
}

func degraded(branches []Branch) Composite {
	out := make(Composite, len(branches))
	for _, b := range branches {
		out[b.Name] = Result{Name: b.Name, Status: StatusError, Value: b.Sentinel}
	}
	return out
}

type settled struct {
	v   any
	err error
}

func (a *Aggregator) runBranch(ctx context.Context, callerID string, b Branch) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("branch panicked", asidecache.Fields{"branch": b.Name, "panic": r})
			res = Result{
				Name:    b.Name,
				Status:  StatusError,
				Value:   b.Sentinel,
				Elapsed: time.Since(start),
				Err:     fmt.Errorf("branch %s: panic: %v", b.Name, r),
			}
		}
	}()

	flagKey := b.Name + ":skip:" + callerID
	if set, err := a.st.Exists(ctx, flagKey); err == nil && set {
		// cooling down; serve the last good value if one is cached
		if b.LoadLast != nil {
			if v, ok := b.LoadLast(ctx); ok {
				return Result{Name: b.Name, Status: StatusSkipped, Value: v, Elapsed: time.Since(start)}
			}
		}
		return Result{Name: b.Name, Status: StatusSkipped, Value: b.Sentinel, Elapsed: time.Since(start)}
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = a.timeout
	}

	ch := make(chan settled, 1) // buffered: a late loser must never block
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- settled{err: fmt.Errorf("branch %s: panic: %v", b.Name, r)}
			}
		}()
		v, err := b.Run(ctx)
		ch <- settled{v: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-ch:
		elapsed := time.Since(start)
		switch {
		case s.err == nil:
			if b.SaveLast != nil {
				b.SaveLast(context.WithoutCancel(ctx), s.v)
			}
			return Result{Name: b.Name, Status: StatusSuccess, Value: s.v, Elapsed: elapsed}
		case s.v != nil:
			return Result{Name: b.Name, Status: StatusPartial, Value: s.v, Elapsed: elapsed, Err: s.err}
		default:
			a.log.Warn("branch failed", asidecache.Fields{"branch": b.Name, "err": s.err})
			return Result{Name: b.Name, Status: StatusError, Value: b.Sentinel, Elapsed: elapsed, Err: s.err}
		}

	case <-timer.C:
		a.engageCoolDown(ctx, b, flagKey)
		// the loser may still finish; bank its result, never deliver it here
		go a.drain(context.WithoutCancel(ctx), b, ch)
		return Result{
			Name:    b.Name,
			Status:  StatusTimeout,
			Value:   b.Sentinel,
			Elapsed: time.Since(start),
			Err:     context.DeadlineExceeded,
		}

	case <-ctx.Done():
		// caller went away; no cool-down, the branch itself is not at fault
		go a.drain(context.WithoutCancel(ctx), b, ch)
		return Result{
			Name:    b.Name,
			Status:  StatusError,
			Value:   b.Sentinel,
			Elapsed: time.Since(start),
			Err:     ctx.Err(),
		}
	}
}

func (a *Aggregator) engageCoolDown(ctx context.Context, b Branch, flagKey string) {
	cd := b.CoolDown
	if cd <= 0 {
		cd = a.coolDown
	}
	if err := a.st.Set(context.WithoutCancel(ctx), flagKey, []byte("1"), cd); err != nil {
		a.hooks.StoreError("set", err)
		return
	}
	a.hooks.SkipFlag(flagKey)
	a.log.Warn("branch timed out; cool-down engaged",
		asidecache.Fields{"branch": b.Name, "flag": flagKey, "coolDown": cd})
}

// drain waits out an abandoned branch call. A late success is written through
// SaveLast so the cool-down window has something to serve; it never touches
// the composite already returned to the caller.
func (a *Aggregator) drain(ctx context.Context, b Branch, ch <-chan settled) {
	s := <-ch
	if s.err == nil && b.SaveLast != nil {
		b.SaveLast(ctx, s.v)
	}
}
