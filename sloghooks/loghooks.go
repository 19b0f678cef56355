// Package sloghooks reports memocache events through log/slog, with
// sampling for the high-volume ones and redaction of persisted paths.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/memocache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	CallHitEvery      uint64
	CallComputedEvery uint64
	// Optional path redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	computedCtr atomic.Uint64
}

var _ memocache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(path string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(path)
	}
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CallHit(store string) {
	if h.l == nil || !sample(h.opts.CallHitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("memocache.call_hit", "store", store)
}

func (h *Hooks) CallComputed(store string, elapsed time.Duration) {
	if h.l == nil || !sample(h.opts.CallComputedEvery, &h.computedCtr) {
		return
	}
	h.l.Debug("memocache.call_computed",
		"store", store,
		"elapsed", elapsed)
}

func (h *Hooks) PropertyComputed(property, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("memocache.property_computed",
		"property", property,
		"reason", reason)
}

func (h *Hooks) PersistLoaded(property, path string) {
	if h.l == nil {
		return
	}
	h.l.Info("memocache.persist_loaded",
		"property", property,
		"path", h.redact(path))
}

func (h *Hooks) PersistFailed(property, path, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("memocache.persist_failed",
		"property", property,
		"path", h.redact(path),
		"op", op,
		"err", err)
}

func (h *Hooks) ThreadScopeMissing(store string) {
	if h.l == nil {
		return
	}
	h.l.Warn("memocache.thread_scope_missing",
		"store", store,
		"msg", "thread-scoped call without WithThreadScope; result not retained")
}
