package fhevm

import (
	"context"
	"sync/atomic"
)

// attempt is one in-flight construction, bound to the identity snapshot it
// was started with. The cancellation flag is the primary mechanism: every
// step of the sequence checks it before doing anything observable, so a
// cancelled attempt can still be running externally but can no longer
// publish, write the cache, or transition the controller.
type attempt struct {
	id       uint64
	identity Identity

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func newAttempt(parent context.Context, id uint64, identity Identity) *attempt {
	ctx, cancel := context.WithCancel(parent)
	return &attempt{id: id, identity: identity, ctx: ctx, cancel: cancel}
}

// abort sets the flag and cancels the attempt context. The in-flight external
// call (if any) is not forcibly interrupted; its eventual result is simply
// discarded at the next checkpoint.
func (a *attempt) abort() {
	a.cancelled.Store(true)
	a.cancel()
}

// aborted reports the flag or a cancelled parent context (the externally
// supplied cancellation signal).
func (a *attempt) aborted() bool {
	return a.cancelled.Load() || a.ctx.Err() != nil
}

// check is the per-step checkpoint: ErrAborted once cancelled, nil otherwise.
func (a *attempt) check() error {
	if a.aborted() {
		return ErrAborted
	}
	return nil
}
