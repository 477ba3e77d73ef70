package fhevm

import (
	"math"
	"math/big"
	"strconv"
)

// Session is the published facade over an externally constructed Instance.
// It validates encryption inputs against the target cipher width before
// delegating, so the handle never sees an out-of-range value. Sessions are
// read-only once published; a newer attempt supersedes, never mutates.
type Session struct {
	inst      Instance
	chainID   uint64
	publicKey string
	public    bool
	mock      bool
}

// ChainID is the chain the session was resolved against (0 when detection
// failed and the identity carried none).
func (s *Session) ChainID() uint64 { return s.chainID }

// PublicKey is the key that seeded this session: the instance's own if it
// reported one, otherwise the cached key.
func (s *Session) PublicKey() string { return s.publicKey }

// IsPublicNetwork reports whether the session targets the known public chain.
func (s *Session) IsPublicNetwork() bool { return s.public }

// IsMockNetwork reports whether the session targets a registered mock chain.
func (s *Session) IsMockNetwork() bool { return s.mock }

// EncryptBool encrypts v as an ebool. The Go type system already guarantees
// a valid input, so this delegates directly.
func (s *Session) EncryptBool(v bool) ([]byte, error) {
	return s.inst.RawEncryptBool(v)
}

// Encrypt8 encrypts v as an euint8. Inputs outside [0, 255] return a
// *RangeError without touching the instance.
func (s *Session) Encrypt8(v int64) ([]byte, error) {
	if v < 0 || v > math.MaxUint8 {
		return nil, &RangeError{Bits: 8, Value: strconv.FormatInt(v, 10)}
	}
	return s.inst.RawEncrypt8(uint8(v))
}

// Encrypt16 encrypts v as an euint16. Inputs outside [0, 65535] return a
// *RangeError.
func (s *Session) Encrypt16(v int64) ([]byte, error) {
	if v < 0 || v > math.MaxUint16 {
		return nil, &RangeError{Bits: 16, Value: strconv.FormatInt(v, 10)}
	}
	return s.inst.RawEncrypt16(uint16(v))
}

// Encrypt32 encrypts v as an euint32. Inputs outside [0, 2^32-1] return a
// *RangeError.
func (s *Session) Encrypt32(v int64) ([]byte, error) {
	if v < 0 || v > math.MaxUint32 {
		return nil, &RangeError{Bits: 32, Value: strconv.FormatInt(v, 10)}
	}
	return s.inst.RawEncrypt32(uint32(v))
}

// Encrypt64 encrypts v as an euint64. v must be a non-negative integer no
// wider than 64 bits; nil, negative or oversized values return a *RangeError.
func (s *Session) Encrypt64(v *big.Int) ([]byte, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 64 {
		val := "<nil>"
		if v != nil {
			val = v.String()
		}
		return nil, &RangeError{Bits: 64, Value: val}
	}
	return s.inst.RawEncrypt64(v.Uint64())
}
