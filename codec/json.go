package codec

import "encoding/json"

// JSON is the default table codec: human-readable, debuggable with any
// redis client, and schema-tolerant across upgrades.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
