package codec

import "encoding/json"

// JSON uses encoding/json. Interface-typed fields decode to their JSON
// shapes (float64, map[string]any), so prefer concrete V.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
