package fhevm

import (
	"errors"
	"math/big"
	"testing"
)

func newTestSession(inst *fakeInstance) *Session {
	return &Session{inst: inst, chainID: 8009, publicKey: "pk", public: true}
}

func TestSessionAccessors(t *testing.T) {
	s := newTestSession(&fakeInstance{})
	if s.ChainID() != 8009 || s.PublicKey() != "pk" {
		t.Fatalf("accessors: chain=%d key=%q", s.ChainID(), s.PublicKey())
	}
	if !s.IsPublicNetwork() || s.IsMockNetwork() {
		t.Fatalf("network flags: public=%v mock=%v", s.IsPublicNetwork(), s.IsMockNetwork())
	}
}

func TestEncryptDelegatesInRange(t *testing.T) {
	inst := &fakeInstance{}
	s := newTestSession(inst)

	if _, err := s.EncryptBool(true); err != nil {
		t.Fatalf("EncryptBool: %v", err)
	}
	if _, err := s.Encrypt8(255); err != nil {
		t.Fatalf("Encrypt8: %v", err)
	}
	if _, err := s.Encrypt16(65535); err != nil {
		t.Fatalf("Encrypt16: %v", err)
	}
	if _, err := s.Encrypt32(1<<32 - 1); err != nil {
		t.Fatalf("Encrypt32: %v", err)
	}
	max64 := new(big.Int).SetUint64(^uint64(0))
	if _, err := s.Encrypt64(max64); err != nil {
		t.Fatalf("Encrypt64: %v", err)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	want := []uint64{255, 65535, 1<<32 - 1, ^uint64(0)}
	if len(inst.values) != len(want) {
		t.Fatalf("instance saw %v, want %v", inst.values, want)
	}
	for i, v := range want {
		if inst.values[i] != v {
			t.Fatalf("instance saw %v, want %v", inst.values, want)
		}
	}
	if len(inst.boolIn) != 1 || !inst.boolIn[0] {
		t.Fatalf("bool input = %v", inst.boolIn)
	}
}

func TestEncryptRejectsOutOfRange(t *testing.T) {
	inst := &fakeInstance{}
	s := newTestSession(inst)

	cases := []struct {
		name string
		call func() ([]byte, error)
		bits int
	}{
		{"8 negative", func() ([]byte, error) { return s.Encrypt8(-1) }, 8},
		{"8 overflow", func() ([]byte, error) { return s.Encrypt8(256) }, 8},
		{"16 overflow", func() ([]byte, error) { return s.Encrypt16(65536) }, 16},
		{"32 negative", func() ([]byte, error) { return s.Encrypt32(-5) }, 32},
		{"32 overflow", func() ([]byte, error) { return s.Encrypt32(1 << 32) }, 32},
		{"64 nil", func() ([]byte, error) { return s.Encrypt64(nil) }, 64},
		{"64 negative", func() ([]byte, error) { return s.Encrypt64(big.NewInt(-1)) }, 64},
		{"64 overflow", func() ([]byte, error) {
			v := new(big.Int).Lsh(big.NewInt(1), 64) // 2^64
			return s.Encrypt64(v)
		}, 64},
	}

	for _, tc := range cases {
		out, err := tc.call()
		if err == nil || out != nil {
			t.Fatalf("%s: expected range error, got out=%v err=%v", tc.name, out, err)
		}
		var rerr *RangeError
		if !errors.As(err, &rerr) || rerr.Bits != tc.bits {
			t.Fatalf("%s: error = %v, want *RangeError for %d bits", tc.name, err, tc.bits)
		}
	}

	if n := inst.encryptCalls(); n != 0 {
		t.Fatalf("instance was invoked %d times with invalid input", n)
	}
}
