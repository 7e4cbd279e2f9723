// Package sloghooks ships hook events to a slog.Logger with sampling and key
// redaction, so production traffic never floods logs with per-entry noise.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/asidecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	StoreErrorEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr   atomic.Uint64
	storeErrorCtr atomic.Uint64
}

var _ asidecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sampled(ctr *atomic.Uint64, every uint64) bool {
	if every <= 1 {
		return true
	}
	return ctr.Add(1)%every == 1
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if !sampled(&h.selfHealCtr, h.opts.SelfHealEvery) {
		return
	}
	h.l.Warn("cache self-heal", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) StoreError(op string, err error) {
	if !sampled(&h.storeErrorCtr, h.opts.StoreErrorEvery) {
		return
	}
	h.l.Warn("store degraded", "op", op, "err", err)
}

func (h *Hooks) LockFallback(storageKey string) {
	h.l.Info("lock wait exhausted; local recompute", "key", h.redact(storageKey))
}

func (h *Hooks) SkipFlag(flagKey string) {
	h.l.Warn("branch cool-down engaged", "flag", flagKey)
}

func (h *Hooks) SweepCompleted(scanned, deleted int) {
	h.l.Info("sweep completed", "scanned", scanned, "deleted", deleted)
}
