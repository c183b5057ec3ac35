// Package blob stores opaque binary clips, keyed by path-like strings.
// The reference server uses it to cache synthesized audio so a replayed
// welcome message or a repeated crisis response is not re-synthesized.
//
// Two backends are provided: local disk and S3-compatible object stores.
// Clips are small (a few hundred KB of MP3), so the interface is
// byte-slice oriented rather than streaming.
package blob

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get when the named clip is not stored.
var ErrNotExist = errors.New("blob: not exist")

// Store persists binary clips. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the clip stored under key.
	// Returns an error wrapping ErrNotExist when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous clip.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the clip. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a clip is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}
