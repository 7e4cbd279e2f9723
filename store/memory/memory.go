// Package memory provides an in-process store.Store for tests and local
// development. It honors per-key TTLs (lazily, on access). Scan patterns
// treat '*' as a wildcard and every other byte as literal, so keys may
// contain arbitrary characters.
//
// Not intended for production: state does not survive restarts, which the
// cache-aside design explicitly relies on the store for.
package memory

import (
	"context"
	"sync"
	"time"

	st "github.com/unkn0wn-root/asidecache/store"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}

type Store struct {
	mu sync.Mutex
	m  map[string]entry
}

var _ st.Store = (*Store)(nil)

func New() *Store { return &Store{m: make(map[string]entry)} }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		delete(s.m, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.v))
	copy(out, e.v)
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.mu.Lock()
	s.m[key] = entry{v: v, exp: exp}
	s.mu.Unlock()
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.m[key] = entry{v: v, exp: exp}
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return false, nil
	}
	if e.expired(time.Now()) {
		delete(s.m, key)
		return false, nil
	}
	return true, nil
}

// Scan snapshots the matching keys under the lock, then streams them to fn
// without holding it, so fn may call back into the store.
func (s *Store) Scan(_ context.Context, pattern string, fn func(key string) error) error {
	now := time.Now()
	s.mu.Lock()
	keys := make([]string, 0, len(s.m))
	for k, e := range s.m {
		if e.expired(now) {
			continue
		}
		if match(pattern, k) {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()

	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// match reports whether key matches pattern. Only '*' is special (any run of
// characters, empty included); '?', '[' and every other byte are literal, so
// stored keys never need escaping.
func match(pattern, key string) bool {
	pi, ki := 0, 0
	star, mark := -1, 0
	for ki < len(key) {
		switch {
		case pi < len(pattern) && pattern[pi] == '*':
			star, mark = pi, ki
			pi++
		case pi < len(pattern) && pattern[pi] == key[ki]:
			pi++
			ki++
		case star >= 0:
			mark++
			pi, ki = star+1, mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.m = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live (non-expired) keys. Test helper.
func (s *Store) Len() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.m {
		if !e.expired(now) {
			n++
		}
	}
	return n
}
