package fhevm

// DefaultPublicChainID is the known public FHE network.
const DefaultPublicChainID = 8009

// DefaultMockNetworks is the mock registry used when Options.MockNetworks is
// nil: the standard local hardhat chain.
var DefaultMockNetworks = map[uint64]string{
	31337: "http://127.0.0.1:8545",
}

// ProfileKind tags the three mutually exclusive configuration shapes.
type ProfileKind int

const (
	// ProfilePublic targets the known public network; the builder carries
	// its parameters itself.
	ProfilePublic ProfileKind = iota
	// ProfileMock targets a registered mock/local chain at Endpoint.
	ProfileMock
	// ProfileGeneric is the fallback, seeded with whatever key the cache had.
	ProfileGeneric
)

// Profile is the configuration variant selected for a chain id. Each case
// carries exactly the fields it needs: Endpoint only for Mock, CachedKey only
// for Generic.
type Profile struct {
	Kind      ProfileKind
	Endpoint  string
	CachedKey string
}

// profileFor selects the variant at a single decision point. The public
// chain check runs before the mock registry: a chain id registered as both
// resolves to the public profile.
func (c *Controller) profileFor(chainID uint64, cachedKey string) Profile {
	if chainID == c.publicChain {
		return Profile{Kind: ProfilePublic}
	}
	if ep, ok := c.mocks[chainID]; ok {
		return Profile{Kind: ProfileMock, Endpoint: ep}
	}
	return Profile{Kind: ProfileGeneric, CachedKey: cachedKey}
}

// Config is what the controller hands the external builder for both phases.
type Config struct {
	ChainID  uint64
	Endpoint string
	Provider Provider
	// PublicKey seeds construction with a previously cached key; empty when
	// none was cached or the profile does not carry one.
	PublicKey string
	// Mock marks a registered mock/local chain.
	Mock bool
}
