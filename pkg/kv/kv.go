// Package kv provides the key-value store used for session persistence.
// Keys are hierarchical paths represented as string slices, e.g.
// ["session", "<id>"] or ["turn", "<session>", "<ts>"], encoded with a
// fixed ':' separator.
//
// Two implementations are provided: a BadgerDB-backed store for the
// reference server and an in-memory store for tests.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// separator joins key segments in the encoded representation.
// Segments must not contain it.
const separator = ':'

// Key is a hierarchical path represented as a slice of string segments.
type Key []string

// String returns the encoded key, for display and storage alike.
func (k Key) String() string {
	return strings.Join(k, string(separator))
}

// encode converts a Key to its stored byte representation.
func (k Key) encode() []byte {
	return []byte(k.String())
}

// decodeKey converts a stored byte representation back to a Key.
func decodeKey(b []byte) Key {
	parts := strings.Split(string(b), string(separator))
	return Key(parts)
}

// Entry is a key-value pair returned by List and consumed by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the session persistence interface.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries under the given prefix in
	// lexicographic order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet atomically stores multiple key-value pairs.
	BatchSet(ctx context.Context, entries []Entry) error

	// DeletePrefix removes every entry under the given prefix.
	// Used to purge a session's records when it is cleared.
	DeletePrefix(ctx context.Context, prefix Key) error

	// Close releases any resources held by the store.
	Close() error
}

// prefixBytes returns the encoded prefix with a trailing separator so
// that ["a","b"] does not match keys under ["a","bc"]. An empty prefix
// matches everything.
func prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(prefix.encode(), separator)
}
