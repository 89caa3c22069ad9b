// Package store provides durable keyed storage for voiceprints: one
// fixed-length float vector per known identity.
//
// The store treats vectors as opaque — it never interprets their contents
// beyond checking the configured dimensionality. The default implementation
// ([FileStore]) keeps one file per identity so that backup and restore can
// operate by file name and a single identity can be restored without
// touching the others. An alternative PostgreSQL/pgvector-backed
// implementation lives in the postgres subpackage for large rosters.
package store

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned by Get when no voiceprint exists for the
	// identity. Cold start is a normal operating mode, so callers are
	// expected to branch on this rather than treat it as fatal.
	ErrNotFound = errors.New("store: voiceprint not found")

	// ErrDimensionMismatch is returned by Put when the vector length does
	// not match the store's configured embedding dimension.
	ErrDimensionMismatch = errors.New("store: embedding dimension mismatch")
)

// Store is the contract shared by all voiceprint storage backends.
//
// Identity keys are case-insensitive; implementations normalise them to
// lower case. All methods must be safe for concurrent use.
type Store interface {
	// Get returns the stored voiceprint for identity, or ErrNotFound.
	// A malformed on-disk record is logged and reported as ErrNotFound.
	Get(ctx context.Context, identity string) ([]float32, error)

	// Put stores (creates or replaces) the voiceprint for identity.
	Put(ctx context.Context, identity string, vec []float32) error

	// Exists reports whether a well-formed voiceprint exists for identity.
	Exists(ctx context.Context, identity string) (bool, error)

	// List returns the identity keys of all well-formed voiceprints.
	List(ctx context.Context) ([]string, error)

	// LoadAll returns the full in-memory working set for a session:
	// every well-formed voiceprint keyed by identity. Malformed records
	// are logged and excluded, never fatal.
	LoadAll(ctx context.Context) (map[string][]float32, error)
}

// Match is one result of a server-side similarity search.
type Match struct {
	Identity string

	// Score is the cosine similarity, matching the scoring of the
	// in-process identifier.
	Score float64
}

// Searcher is implemented by backends that can rank candidates themselves
// (the pgvector backend). The identifier prefers this over pulling the
// whole working set when no group scoping is needed.
type Searcher interface {
	// Nearest returns the k identities most similar to embedding, most
	// similar first.
	Nearest(ctx context.Context, embedding []float32, k int) ([]Match, error)
}
