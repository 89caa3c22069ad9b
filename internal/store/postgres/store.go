// Package postgres provides a PostgreSQL/pgvector-backed implementation of
// [store.Store] for rosters too large to keep as loose files.
//
// The pgvector extension must be available in the target database;
// [NewStore] installs it automatically via CREATE EXTENSION IF NOT EXISTS
// and creates the voiceprints table on first use.
//
// This backend additionally exposes [Store.Nearest], which ranks candidates
// server-side by cosine distance, so an identification pass does not need
// to pull the whole roster over the wire first.
//
// Backups are a file-backend concern: this store does not participate in
// snapshot create/restore and the backup commands refuse it with a typed
// error rather than silently doing nothing.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/marcant0n/voxid/internal/store"
)

// Compile-time interface checks.
var (
	_ store.Store    = (*Store)(nil)
	_ store.Searcher = (*Store)(nil)
)

const ddlVoiceprints = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS voiceprints (
    identity   TEXT         PRIMARY KEY,
    embedding  vector(%d)   NOT NULL,
    updated    TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Store is the PostgreSQL-backed voiceprint store. All operations are safe
// for concurrent use; the pool handles its own synchronisation.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection, and ensures the schema exists. dim must match the
// external encoder's output dimension; changing it after the first
// migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("postgres store: embedding dimension must be positive, got %d", dim)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlVoiceprints, dim)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool, dim: dim}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, identity string) ([]float32, error) {
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT embedding FROM voiceprints WHERE identity = lower($1)`, identity,
	).Scan(&vec)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get %q: %w", identity, err)
	}
	return vec.Slice(), nil
}

// Put implements [store.Store]. Existing voiceprints are replaced.
func (s *Store) Put(ctx context.Context, identity string, vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("postgres store: put %q: got %d values, want %d: %w",
			identity, len(vec), s.dim, store.ErrDimensionMismatch)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO voiceprints (identity, embedding, updated)
		VALUES (lower($1), $2, $3)
		ON CONFLICT (identity) DO UPDATE SET
		    embedding = EXCLUDED.embedding,
		    updated   = EXCLUDED.updated`,
		identity, pgvector.NewVector(vec), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres store: put %q: %w", identity, err)
	}
	return nil
}

// Exists implements [store.Store].
func (s *Store) Exists(ctx context.Context, identity string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM voiceprints WHERE identity = lower($1))`, identity,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres store: exists %q: %w", identity, err)
	}
	return ok, nil
}

// List implements [store.Store].
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT identity FROM voiceprints ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	return ids, nil
}

// LoadAll implements [store.Store].
func (s *Store) LoadAll(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.pool.Query(ctx, `SELECT identity, embedding FROM voiceprints`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load all: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var (
			id  string
			vec pgvector.Vector
		)
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("postgres store: load all: scan: %w", err)
		}
		out[id] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: load all: %w", err)
	}
	return out, nil
}

// Nearest implements [store.Searcher]: the k identities whose voiceprints
// are most similar to embedding, most similar first, scored as cosine
// similarity (1 - cosine distance).
func (s *Store) Nearest(ctx context.Context, embedding []float32, k int) ([]store.Match, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("postgres store: nearest: got %d values, want %d: %w",
			len(embedding), s.dim, store.ErrDimensionMismatch)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT identity, 1 - (embedding <=> $1) AS score
		FROM   voiceprints
		ORDER  BY embedding <=> $1
		LIMIT  $2`,
		pgvector.NewVector(embedding), k,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres store: nearest: %w", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Match, error) {
		var m store.Match
		err := row.Scan(&m.Identity, &m.Score)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: nearest: %w", err)
	}
	return matches, nil
}
