// Package codec turns property values into bytes for a provider and back.
// A persisted value must round-trip exactly, so pick a codec that preserves
// the concrete type of V (CBOR and Msgpack for plain data, Protobuf for
// generated messages).
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Default is the codec persisted properties use when none is configured:
// deterministic CBOR, so equal values produce equal files.
func Default[V any]() Codec[V] {
	return MustCBOR[V](true)
}
