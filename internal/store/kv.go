// Package store is the typed component client over a key-value backend.
package store

import (
	"context"
	"errors"
)

// ErrStoreUnavailable wraps every failure reported by the backend. Absence
// of a key is not an error.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrDecode is returned when a stored value does not decode into the
// requested type.
var ErrDecode = errors.New("undecodable value")

// KV is the key-value backend. Values are JSON documents; collections are
// ordered member lists keyed separately from values.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Members returns the member keys of a collection in insertion order.
	Members(ctx context.Context, collection string) ([]string, error)
	// AddMember appends member and returns its index. Adding an existing
	// member returns its current index.
	AddMember(ctx context.Context, collection, member string) (int, error)
	// RemoveMember removes member and returns the index it had, or -1.
	RemoveMember(ctx context.Context, collection, member string) (int, error)
}
