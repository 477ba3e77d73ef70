package fhevm

import (
	"context"

	"github.com/KittyEmmerich/dapp/keycache"
	"github.com/KittyEmmerich/dapp/logging"
)

// Network is what a wallet provider reports about its current connection.
type Network struct {
	ChainID  uint64
	Endpoint string
}

// Provider is the wallet-side capability an Identity carries.
type Provider interface {
	// ResolveNetwork may fail; the controller treats that as non-fatal and
	// proceeds with whatever the identity already knew.
	ResolveNetwork(ctx context.Context) (Network, error)
}

// Builder is the external SDK's two-phase entry point. Both phases may fail
// independently; the controller wraps each with its own failure kind.
type Builder interface {
	Initialize(ctx context.Context, cfg Config) error
	Construct(ctx context.Context, cfg Config) (Instance, error)
}

// Instance is the session handle the builder produces: the authoritative key
// accessor plus the raw encryption entry points the Session facade wraps.
type Instance interface {
	PublicKey(ctx context.Context) (string, error)

	RawEncryptBool(v bool) ([]byte, error)
	RawEncrypt8(v uint8) ([]byte, error)
	RawEncrypt16(v uint16) ([]byte, error)
	RawEncrypt32(v uint32) ([]byte, error)
	RawEncrypt64(v uint64) ([]byte, error)
}

// Identity is the (provider, chainId) pair that determines which session
// should exist. A nil Provider means no session can be provisioned. ChainID 0
// means "not supplied"; the controller asks the provider for it.
type Identity struct {
	Provider Provider
	ChainID  uint64
}

// Options tune the controller. One of Builder or LoadBuilder is required;
// everything else has defaults.
type Options struct {
	// Builder is the SDK handle when it is already available. Leave nil and
	// set LoadBuilder to defer SDK loading into the attempt, where a load
	// failure becomes a FailSDKLoad outcome instead of a constructor error.
	Builder     Builder
	LoadBuilder func(ctx context.Context) (Builder, error)

	KeyCache *keycache.Cache // nil disables key seeding and write-through

	Logger   logging.Logger // nil => NopLogger
	Hooks    Hooks          // nil => NopHooks
	OnChange func(State)    // observer push; called outside the controller lock

	PublicChainID uint64            // 0 => DefaultPublicChainID
	MockNetworks  map[uint64]string // nil => DefaultMockNetworks
	Authority     string            // key authority address; "" => cache default

	// Context is the externally supplied cancellation signal: cancelling it
	// aborts any in-flight attempt. Nil means attempts only stop on identity
	// change, Stop, or pause.
	Context context.Context

	Disabled bool // start paused; SetEnabled(true) resumes
}

func New(opts Options) (*Controller, error) {
	return newController(opts)
}
