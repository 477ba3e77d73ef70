// Package sloghooks logs fhevm controller hooks through log/slog. Identity
// churn (a user flipping networks in their wallet) can fire discard events in
// bursts, so those are sampled.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/KittyEmmerich/dapp/fhevm"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DiscardEvery uint64
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	discardCtr atomic.Uint64
}

var _ fhevm.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) AttemptStarted(id, chainID uint64) {
	h.l.Debug("fhevm attempt started", "attempt", id, "chainId", chainID)
}

func (h *Hooks) AttemptCancelled(id uint64) {
	h.l.Debug("fhevm attempt cancelled", "attempt", id)
}

func (h *Hooks) ResultDiscarded(id uint64, reason string) {
	n := h.discardCtr.Add(1)
	if h.opts.DiscardEvery > 1 && n%h.opts.DiscardEvery != 0 {
		return
	}
	h.l.Info("fhevm result discarded", "attempt", id, "reason", reason)
}

func (h *Hooks) ChainDetectionFailed(err error) {
	h.l.Warn("fhevm chain detection failed", "err", err)
}

func (h *Hooks) KeyRefreshed(chainID uint64) {
	h.l.Info("fhevm public key refreshed", "chainId", chainID)
}

func (h *Hooks) KeyRetrievalFailed(err error) {
	h.l.Warn("fhevm public key retrieval failed", "err", err)
}
