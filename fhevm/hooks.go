package fhevm

// Hooks lightweight callbacks for high-signal controller events.
// Implementations MUST be cheap and non-blocking; the controller calls them
// from its attempt goroutine.
type Hooks interface {
	// A new attempt was created for chainID (0 when not yet detected).
	AttemptStarted(id uint64, chainID uint64)

	// An attempt was cancelled before it settled (newer Start, Stop, pause).
	AttemptCancelled(id uint64)

	// A settled attempt's result was thrown away instead of published.
	// reason ∈ {"cancelled", "superseded"}
	ResultDiscarded(id uint64, reason string)

	// The provider could not report a chain id; the attempt continued without.
	ChainDetectionFailed(err error)

	// The instance reported a public key differing from the cached one and
	// the cache was refreshed write-through.
	KeyRefreshed(chainID uint64)

	// The instance could not report its public key; the cached key (possibly
	// none) stayed in effect.
	KeyRetrievalFailed(err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) AttemptStarted(uint64, uint64)  {}
func (NopHooks) AttemptCancelled(uint64)        {}
func (NopHooks) ResultDiscarded(uint64, string) {}
func (NopHooks) ChainDetectionFailed(error)     {}
func (NopHooks) KeyRefreshed(uint64)            {}
func (NopHooks) KeyRetrievalFailed(error)       {}
