// Package asynchook decouples hook consumers from the controller's attempt
// goroutine. Events are queued to worker goroutines and dropped when the
// queue is full, so a slow sink can never stall provisioning.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{DiscardEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
package asynchook

import (
	"sync"

	"github.com/KittyEmmerich/dapp/fhevm"
)

type Hooks struct {
	inner fhevm.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ fhevm.Hooks = (*Hooks)(nil)

func New(inner fhevm.Hooks, workers, qlen int) *Hooks {
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

func (h *Hooks) AttemptStarted(id, chainID uint64) {
	h.try(func() { h.inner.AttemptStarted(id, chainID) })
}
func (h *Hooks) AttemptCancelled(id uint64) { h.try(func() { h.inner.AttemptCancelled(id) }) }
func (h *Hooks) ResultDiscarded(id uint64, reason string) {
	h.try(func() { h.inner.ResultDiscarded(id, reason) })
}
func (h *Hooks) ChainDetectionFailed(err error) { h.try(func() { h.inner.ChainDetectionFailed(err) }) }
func (h *Hooks) KeyRefreshed(chainID uint64)    { h.try(func() { h.inner.KeyRefreshed(chainID) }) }
func (h *Hooks) KeyRetrievalFailed(err error)   { h.try(func() { h.inner.KeyRetrievalFailed(err) }) }
