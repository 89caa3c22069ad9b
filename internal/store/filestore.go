package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// VectorFileExt is the filename extension for voiceprint files.
const VectorFileExt = ".vpr"

// vectorRecord is the on-disk shape of one voiceprint file (msgpack).
type vectorRecord struct {
	Identity string    `msgpack:"identity"`
	Dim      int       `msgpack:"dim"`
	Values   []float32 `msgpack:"values"`
	Updated  time.Time `msgpack:"updated"`
}

// FileStore persists one msgpack-encoded vector file per identity inside a
// single vault directory. Writes go through a temp file and rename so a
// crashed write never leaves a torn voiceprint behind.
//
// Safe for concurrent use; a single mutex serialises writes, which is ample
// for the expected call volume (tens of operations per session).
type FileStore struct {
	mu  sync.Mutex
	dir string
	dim int
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// needed. dim is the embedding dimension enforced on Put and checked on
// read; files with any other dimension are treated as malformed.
func NewFileStore(dir string, dim int) (*FileStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("store: embedding dimension must be positive, got %d", dim)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create vault dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir, dim: dim}, nil
}

// Dir returns the vault directory. The backup manager copies files from
// and into this directory by name.
func (fs *FileStore) Dir() string { return fs.dir }

// Dim returns the enforced embedding dimension.
func (fs *FileStore) Dim() int { return fs.dim }

// PathFor returns the on-disk path for an identity's voiceprint file.
func (fs *FileStore) PathFor(identity string) string {
	return filepath.Join(fs.dir, normalize(identity)+VectorFileExt)
}

func normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Get implements [Store].
func (fs *FileStore) Get(ctx context.Context, identity string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := fs.read(fs.PathFor(identity))
	if err != nil {
		return nil, err
	}
	return rec.Values, nil
}

// Put implements [Store].
func (fs *FileStore) Put(ctx context.Context, identity string, vec []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(vec) != fs.dim {
		return fmt.Errorf("store: put %q: got %d values, want %d: %w",
			identity, len(vec), fs.dim, ErrDimensionMismatch)
	}

	rec := vectorRecord{
		Identity: normalize(identity),
		Dim:      fs.dim,
		Values:   vec,
		Updated:  time.Now().UTC(),
	}
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("store: encode voiceprint %q: %w", identity, err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.PathFor(identity)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write voiceprint %q: %w", identity, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: commit voiceprint %q: %w", identity, err)
	}
	return nil
}

// Exists implements [Store]. A malformed file counts as absent.
func (fs *FileStore) Exists(ctx context.Context, identity string) (bool, error) {
	_, err := fs.Get(ctx, identity)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// List implements [Store].
func (fs *FileStore) List(ctx context.Context) ([]string, error) {
	all, err := fs.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// LoadAll implements [Store]. Files that fail to decode or carry the wrong
// dimension are logged at warn level and skipped, per the recovery policy
// for malformed data: the identity is simply absent from this session's
// working set.
func (fs *FileStore) LoadAll(ctx context.Context) (map[string][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("store: read vault dir %q: %w", fs.dir, err)
	}

	out := make(map[string][]float32, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), VectorFileExt) {
			continue
		}
		path := filepath.Join(fs.dir, e.Name())
		rec, err := fs.read(path)
		if err != nil {
			// Already logged by read; excluded from the working set.
			continue
		}
		key := strings.TrimSuffix(e.Name(), VectorFileExt)
		out[key] = rec.Values
	}
	return out, nil
}

// read loads and validates one voiceprint file. Corruption and dimension
// mismatches are reported as ErrNotFound so callers treat the identity as
// absent rather than crash.
func (fs *FileStore) read(path string) (*vectorRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read %q: %w", path, err)
	}

	var rec vectorRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		slog.Warn("skipping corrupt voiceprint file", "path", path, "err", err)
		return nil, ErrNotFound
	}
	if rec.Dim != fs.dim || len(rec.Values) != fs.dim {
		slog.Warn("skipping voiceprint with wrong dimension",
			"path", path, "dim", rec.Dim, "values", len(rec.Values), "want", fs.dim)
		return nil, ErrNotFound
	}
	return &rec, nil
}
