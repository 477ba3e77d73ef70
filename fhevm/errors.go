package fhevm

import (
	"errors"
	"fmt"
)

// ErrAborted marks an attempt cancelled by a newer Start, Stop or pause.
// It is never published to observers; callers inside the attempt use it to
// unwind without touching shared state.
var ErrAborted = errors.New("fhevm: attempt aborted")

// FailureKind classifies provisioning failures.
type FailureKind string

const (
	FailSDKLoad        FailureKind = "sdk_load"
	FailChainDetection FailureKind = "chain_detection"
	FailInitialization FailureKind = "initialization"
	FailConstruction   FailureKind = "construction"
	FailKeyRetrieval   FailureKind = "key_retrieval"
)

// ProvisionError wraps a failed provisioning step with its kind.
type ProvisionError struct {
	Kind FailureKind
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("fhevm: %s failed: %v", e.Kind, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// Terminal reports whether this failure drives the controller to Failed.
// Chain detection and key retrieval are absorbed: the attempt continues with
// degraded data and observers never see them.
func (e *ProvisionError) Terminal() bool {
	switch e.Kind {
	case FailSDKLoad, FailInitialization, FailConstruction:
		return true
	}
	return false
}

// RangeError is returned synchronously by the Session facade when an
// encryption input does not fit the target width. The underlying instance is
// never invoked with an out-of-range value.
type RangeError struct {
	Bits  int // target width; 1 for ebool
	Value string
}

func (e *RangeError) Error() string {
	if e.Bits == 1 {
		return fmt.Sprintf("fhevm: value %s is not a valid ebool input", e.Value)
	}
	return fmt.Sprintf("fhevm: value %s out of range for euint%d", e.Value, e.Bits)
}
