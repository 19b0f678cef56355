// Package provider defines the durable byte store behind persisted
// properties. Keys are resolved property paths ("reports/{year}.cbor" after
// substitution); values are framed records produced by memocache.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for a key. Entries never expire; memocache
// has no TTL or eviction of its own and relies on Del for removal.
package provider

import (
	"context"
)

// Provider is a minimal byte store. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value, replacing any previous one.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
