// Package store defines the durable byte store the key cache persists into.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no
// prepended/appended metadata, no re-encoding, no mutation). If a store
// performs internal transforms (e.g., compression), they MUST be fully
// reversed so that the bytes returned by Get are identical to the bytes
// provided to Set.
//
// A single Set is atomic: readers observe either the previous value or the
// new one, never a partial write. Within one process a Get issued after a
// successful Set for the same key must observe that Set (read-your-writes).
// Expiry is not the store's job; the cache layered above tracks entry age
// itself and treats the store as plain durable bytes.
package store

import "context"

// Store is a minimal namespaced byte store.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key (best-effort; deleting a missing key is not an error).
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
