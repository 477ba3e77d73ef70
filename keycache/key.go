package keycache

import (
	"strconv"
	"strings"
)

// DefaultAuthority is the key authority (ACL contract) address assumed when
// a Key carries none. Substituting it during canonicalization makes an
// absent authority and an explicit default authority the same cache slot.
const DefaultAuthority = "0x2Fb4341027eb1d2aD8B5D9708187df8633cAFA92"

// Key identifies one cached public key: which chain it was fetched for and
// which key authority issued it.
type Key struct {
	ChainID   uint64
	Authority string // empty means DefaultAuthority
}

// Canonical renders the key as the single string token both tiers index by.
// Authority addresses are hex and case-insensitive, so they are lowercased;
// two keys differing only by absent-vs-default authority canonicalize equal.
func (k Key) Canonical() string {
	auth := k.Authority
	if auth == "" {
		auth = DefaultAuthority
	}
	return strconv.FormatUint(k.ChainID, 10) + ":" + strings.ToLower(auth)
}
