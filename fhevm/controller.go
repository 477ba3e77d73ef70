package fhevm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KittyEmmerich/dapp/internal/opt"
	"github.com/KittyEmmerich/dapp/keycache"
	"github.com/KittyEmmerich/dapp/logging"
)

// Status is the controller's observable lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// State is the snapshot observers see. Err is set only in StatusFailed and
// only ever carries a terminal *ProvisionError; cancellations are silent.
type State struct {
	Status  Status
	Err     error
	Session *Session
}

// Controller drives session provisioning for a changing identity. At most
// one non-cancelled attempt exists at any time: Start cancels the previous
// attempt before creating the next one and never waits for it to settle.
type Controller struct {
	builder     Builder
	loadBuilder func(ctx context.Context) (Builder, error)
	keys        *keycache.Cache
	log         logging.Logger
	hooks       Hooks
	onChange    func(State)
	publicChain uint64
	mocks       map[uint64]string
	authority   string
	baseCtx     context.Context

	mu       sync.Mutex
	enabled  bool
	identity Identity
	current  *attempt
	lastID   uint64
	state    State
}

func newController(opts Options) (*Controller, error) {
	if opts.Builder == nil && opts.LoadBuilder == nil {
		return nil, fmt.Errorf("fhevm: builder or builder loader is required")
	}

	c := &Controller{
		builder:     opts.Builder,
		loadBuilder: opts.LoadBuilder,
		keys:        opts.KeyCache,
		onChange:    opts.OnChange,
		authority:   opts.Authority,
		enabled:     !opts.Disabled,
		state:       State{Status: StatusIdle},
	}

	if opts.Logger != nil {
		c.log = opts.Logger
	} else {
		c.log = logging.NopLogger{}
	}
	if opts.Hooks != nil {
		c.hooks = opts.Hooks
	} else {
		c.hooks = NopHooks{}
	}
	if opts.MockNetworks != nil {
		c.mocks = opts.MockNetworks
	} else {
		c.mocks = DefaultMockNetworks
	}
	if opts.Context != nil {
		c.baseCtx = opts.Context
	} else {
		c.baseCtx = context.Background()
	}
	c.publicChain = opt.Coalesce[uint64](opts.PublicChainID, DefaultPublicChainID)

	return c, nil
}

// Start begins (or refreshes) provisioning for identity. Any attempt in
// flight is cancelled first; its eventual result will be discarded. An
// identity without a provider cannot be provisioned, so the controller just
// goes Idle. While paused, Start only records the identity for resume.
func (c *Controller) Start(identity Identity) {
	c.mu.Lock()
	c.identity = identity
	c.cancelCurrentLocked()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	if identity.Provider == nil {
		st, changed := c.setStateLocked(State{Status: StatusIdle})
		c.mu.Unlock()
		c.notify(st, changed)
		return
	}

	c.lastID++
	a := newAttempt(c.baseCtx, c.lastID, identity)
	c.current = a
	st, changed := c.setStateLocked(State{Status: StatusLoading})
	c.mu.Unlock()

	c.notify(st, changed)
	c.hooks.AttemptStarted(a.id, identity.ChainID)
	go c.run(a)
}

// Stop cancels any active attempt, clears the published session and goes
// Idle. Safe to call repeatedly and from teardown paths.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.cancelCurrentLocked()
	st, changed := c.setStateLocked(State{Status: StatusIdle})
	c.mu.Unlock()
	c.notify(st, changed)
}

// SetEnabled pauses or resumes the controller. Pausing behaves like Stop but
// also suppresses future Starts; resuming re-triggers provisioning with the
// last recorded identity if it has a provider.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	if c.enabled == enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = enabled
	if !enabled {
		c.cancelCurrentLocked()
		st, changed := c.setStateLocked(State{Status: StatusIdle})
		c.mu.Unlock()
		c.notify(st, changed)
		return
	}
	ident := c.identity
	c.mu.Unlock()
	if ident.Provider != nil {
		c.Start(ident)
	}
}

// State returns the current observable snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the published session, nil unless StatusReady.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Session
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// CachedKey reads the key cache for the controller's current identity
// (preferring the published session's resolved chain id).
func (c *Controller) CachedKey(ctx context.Context) (string, bool) {
	if c.keys == nil {
		return "", false
	}
	return c.keys.Get(ctx, c.currentKey())
}

// ClearKeyCache forgets all cached keys in both tiers.
func (c *Controller) ClearKeyCache(ctx context.Context) {
	if c.keys == nil {
		return
	}
	c.keys.ClearAll(ctx)
}

// KeyCacheStats reports key cache diagnostics.
func (c *Controller) KeyCacheStats(ctx context.Context) keycache.Stats {
	if c.keys == nil {
		return keycache.Stats{}
	}
	return c.keys.Stats(ctx)
}

func (c *Controller) currentKey() keycache.Key {
	c.mu.Lock()
	chainID := c.identity.ChainID
	if c.state.Session != nil {
		chainID = c.state.Session.ChainID()
	}
	c.mu.Unlock()
	return keycache.Key{ChainID: chainID, Authority: c.authority}
}

func (c *Controller) cancelCurrentLocked() {
	if c.current == nil {
		return
	}
	c.current.abort()
	c.hooks.AttemptCancelled(c.current.id)
	c.current = nil
}

// setStateLocked records st and reports whether it differs from the previous
// state. Observers are notified outside the lock via notify.
func (c *Controller) setStateLocked(st State) (State, bool) {
	prev := c.state
	c.state = st
	changed := prev.Status != st.Status || prev.Err != st.Err || prev.Session != st.Session
	return st, changed
}

func (c *Controller) notify(st State, changed bool) {
	if changed && c.onChange != nil {
		c.onChange(st)
	}
}

func (c *Controller) run(a *attempt) {
	sess, err := c.provision(a)
	if err != nil {
		if errors.Is(err, ErrAborted) {
			// cancellation is not an error; nothing observable happens
			c.log.Debug("attempt aborted", logging.Fields{"attempt": a.id})
			c.hooks.ResultDiscarded(a.id, "cancelled")
			return
		}
		if !c.finish(a, State{Status: StatusFailed, Err: err}) {
			c.log.Debug("discarding failure from superseded attempt",
				logging.Fields{"attempt": a.id, "err": err})
			c.hooks.ResultDiscarded(a.id, "superseded")
		}
		return
	}
	if !c.finish(a, State{Status: StatusReady, Session: sess}) {
		c.log.Debug("discarding session from superseded attempt", logging.Fields{"attempt": a.id})
		c.hooks.ResultDiscarded(a.id, "superseded")
	}
}

// finish publishes st iff a is still the controller's current, non-cancelled
// attempt. The identity comparison is a defensive double-check against an
// attempt that somehow escaped cancellation; the flag is the primary
// mechanism.
func (c *Controller) finish(a *attempt, st State) bool {
	c.mu.Lock()
	if c.current != a || a.aborted() || c.identity != a.identity {
		c.mu.Unlock()
		return false
	}
	c.current = nil
	st2, changed := c.setStateLocked(st)
	c.mu.Unlock()
	c.notify(st2, changed)
	return true
}

// provision runs the construction sequence for one attempt. Every step that
// suspends on an external call is followed by a cancellation checkpoint;
// once the attempt is aborted nothing below touches the cache or returns a
// session.
func (c *Controller) provision(a *attempt) (*Session, error) {
	ctx := a.ctx

	builder := c.builder
	if builder == nil {
		b, err := c.loadBuilder(ctx)
		if err != nil {
			if a.aborted() {
				return nil, ErrAborted
			}
			return nil, &ProvisionError{Kind: FailSDKLoad, Err: err}
		}
		builder = b
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	chainID := a.identity.ChainID
	endpoint := ""
	if net, err := a.identity.Provider.ResolveNetwork(ctx); err != nil {
		if a.aborted() {
			return nil, ErrAborted
		}
		// non-fatal: proceed with the chain id unset
		c.log.Warn("chain detection failed; continuing without",
			logging.Fields{"err": &ProvisionError{Kind: FailChainDetection, Err: err}})
		c.hooks.ChainDetectionFailed(err)
	} else {
		endpoint = net.Endpoint
		if chainID == 0 {
			chainID = net.ChainID
		}
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	var cachedKey string
	if c.keys != nil {
		cachedKey, _ = c.keys.Get(ctx, keycache.Key{ChainID: chainID, Authority: c.authority})
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	prof := c.profileFor(chainID, cachedKey)
	cfg := Config{ChainID: chainID, Endpoint: endpoint, Provider: a.identity.Provider}
	switch prof.Kind {
	case ProfileMock:
		cfg.Endpoint = prof.Endpoint
		cfg.Mock = true
	case ProfileGeneric:
		cfg.PublicKey = prof.CachedKey
	}

	if err := builder.Initialize(ctx, cfg); err != nil {
		if a.aborted() {
			return nil, ErrAborted
		}
		return nil, &ProvisionError{Kind: FailInitialization, Err: err}
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	inst, err := builder.Construct(ctx, cfg)
	if err != nil {
		if a.aborted() {
			return nil, ErrAborted
		}
		return nil, &ProvisionError{Kind: FailConstruction, Err: err}
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	key := cachedKey
	if pk, err := inst.PublicKey(ctx); err != nil {
		// non-fatal: the session keeps whatever key seeded it
		c.log.Warn("public key retrieval failed; keeping cached key",
			logging.Fields{"err": &ProvisionError{Kind: FailKeyRetrieval, Err: err}})
		c.hooks.KeyRetrievalFailed(err)
	} else if pk != "" {
		if pk != cachedKey && c.keys != nil {
			if err := a.check(); err != nil {
				return nil, err // no cache write after cancellation
			}
			c.keys.Set(ctx, keycache.Key{ChainID: chainID, Authority: c.authority}, pk)
			c.hooks.KeyRefreshed(chainID)
		}
		key = pk
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	return &Session{
		inst:      inst,
		chainID:   chainID,
		publicKey: key,
		public:    prof.Kind == ProfilePublic,
		mock:      prof.Kind == ProfileMock,
	}, nil
}
