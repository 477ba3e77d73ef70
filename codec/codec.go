// Package codec provides pluggable (de)serialization for values persisted
// through the durable store, most importantly the key cache's table.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
