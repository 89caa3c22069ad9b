// Package backup implements snapshot and restore of the voiceprint vault
// and the identity registry, with bounded FIFO retention.
//
// A snapshot is a directory holding a copy of every voiceprint file plus
// the registry file, named after its creation time. The ordered snapshot
// list lives in a YAML history file that is always written via a temporary
// file and rename, so a crashed write can never corrupt the retention
// invariant. Creating a snapshot is likewise staged in a temporary
// directory and committed by rename: a failed backup leaves no partial
// snapshot behind and never enters the history.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"

	"github.com/marcant0n/voxid/internal/observe"
	"github.com/marcant0n/voxid/internal/store"
)

// Reason tags why a snapshot was taken.
type Reason string

const (
	// ReasonManual marks an operator-requested snapshot.
	ReasonManual Reason = "manual"

	// ReasonAutoBeforeUpdate marks the one-per-session snapshot the
	// learner takes before its first mutation of an existing voiceprint.
	ReasonAutoBeforeUpdate Reason = "auto_before_update"

	// ReasonPreRestore marks the safety snapshot taken unconditionally
	// before any restore, so a restore is itself undoable.
	ReasonPreRestore Reason = "pre_restore"
)

// Latest selects the most recent snapshot in restore operations.
const Latest = "latest"

// DefaultMaxBackups is the retention bound applied when the history file
// does not carry its own.
const DefaultMaxBackups = 10

// Sentinel errors surfaced to callers as typed results, not control flow.
var (
	// ErrNoBackups means the history is empty.
	ErrNoBackups = errors.New("backup: no backups available")

	// ErrSnapshotNotFound means the named snapshot is not in the history
	// (or its directory has vanished from disk).
	ErrSnapshotNotFound = errors.New("backup: snapshot not found")

	// ErrIdentityNotInSnapshot means the chosen snapshot does not contain
	// a voiceprint file for the requested identity.
	ErrIdentityNotInSnapshot = errors.New("backup: identity not in snapshot")

	// ErrUnsupportedBackend means the configured store backend has no
	// file-level representation to snapshot (e.g. postgres).
	ErrUnsupportedBackend = errors.New("backup: store backend does not support file snapshots")
)

// Snapshot is one entry in the backup history.
type Snapshot struct {
	// Name identifies the snapshot (derived from its creation time).
	Name string `yaml:"name"`

	// Path is the absolute snapshot directory.
	Path string `yaml:"path"`

	// Created is the creation timestamp.
	Created time.Time `yaml:"created"`

	// Reason records why the snapshot was taken.
	Reason Reason `yaml:"reason"`

	// Files lists the voiceprint file names captured.
	Files []string `yaml:"files"`
}

// historyFile is the on-disk shape of the backup history.
type historyFile struct {
	MaxBackups int        `yaml:"max_backups"`
	Backups    []Snapshot `yaml:"backups"`
}

// Manager performs snapshot and restore operations for one vault.
//
// Safe for concurrent use: a single mutex makes the append-then-evict
// sequence and restores mutually exclusive, which matters because restore
// itself creates a pre_restore snapshot.
type Manager struct {
	mu           sync.Mutex
	vault        *store.FileStore
	registryPath string
	backupDir    string
	historyPath  string
	maxBackups   int
}

// NewManager creates a Manager for the given vault. registryPath is the
// identity registry file captured alongside the voiceprints (it may not
// exist yet on a fresh installation). maxBackups ≤ 0 selects
// [DefaultMaxBackups].
func NewManager(vault *store.FileStore, registryPath, backupDir, historyPath string, maxBackups int) *Manager {
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	return &Manager{
		vault:        vault,
		registryPath: registryPath,
		backupDir:    backupDir,
		historyPath:  historyPath,
		maxBackups:   maxBackups,
	}
}

// Create takes a new snapshot of the vault and registry, appends it to the
// history, and evicts the oldest snapshots beyond the retention bound.
func (m *Manager) Create(reason Reason) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(reason)
}

func (m *Manager) createLocked(reason Reason) (Snapshot, error) {
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("backup: create backup dir: %w", err)
	}

	now := time.Now().UTC()
	// A short random suffix keeps two snapshots within the same second apart.
	name := fmt.Sprintf("backup_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
	finalPath, err := filepath.Abs(filepath.Join(m.backupDir, name))
	if err != nil {
		return Snapshot{}, fmt.Errorf("backup: resolve snapshot path: %w", err)
	}

	// Stage in a temp dir, commit by rename. A failure below leaves no
	// partial snapshot and no history entry.
	tmpPath := filepath.Join(m.backupDir, ".tmp-"+name)
	if err := os.MkdirAll(tmpPath, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("backup: stage snapshot: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpPath) }

	files, err := m.copyVaultFiles(m.vault.Dir(), tmpPath)
	if err != nil {
		cleanup()
		return Snapshot{}, err
	}
	if m.registryPath != "" {
		if err := copyFileIfExists(m.registryPath, filepath.Join(tmpPath, filepath.Base(m.registryPath))); err != nil {
			cleanup()
			return Snapshot{}, fmt.Errorf("backup: capture registry: %w", err)
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		cleanup()
		return Snapshot{}, fmt.Errorf("backup: commit snapshot: %w", err)
	}

	snap := Snapshot{
		Name:    name,
		Path:    finalPath,
		Created: now,
		Reason:  reason,
		Files:   files,
	}

	history, err := m.loadHistory()
	if err != nil {
		return Snapshot{}, err
	}
	history.Backups = append(history.Backups, snap)

	// FIFO eviction, enforced immediately after every append.
	for len(history.Backups) > history.MaxBackups {
		old := history.Backups[0]
		history.Backups = history.Backups[1:]
		if err := os.RemoveAll(old.Path); err != nil {
			slog.Warn("failed to remove evicted snapshot", "name", old.Name, "path", old.Path, "err", err)
		} else {
			slog.Info("evicted old snapshot", "name", old.Name, "reason", old.Reason)
		}
	}

	if err := m.saveHistory(history); err != nil {
		return Snapshot{}, err
	}

	observe.DefaultMetrics().BackupsCreated.Add(context.Background(), 1,
		metric.WithAttributes(observe.Attr("reason", string(reason))))
	slog.Info("snapshot created", "name", name, "reason", reason, "files", len(files))
	return snap, nil
}

// List returns all snapshots in creation order, oldest first.
func (m *Manager) List() ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.loadHistory()
	if err != nil {
		return nil, err
	}
	return history.Backups, nil
}

// Restore overwrites every voiceprint file present in the chosen snapshot
// and replaces the registry file. name may be [Latest]. A pre_restore
// snapshot of the current state is taken first, unconditionally.
func (m *Manager) Restore(name string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.findLocked(name)
	if err != nil {
		return Snapshot{}, err
	}

	if _, err := m.createLocked(ReasonPreRestore); err != nil {
		return Snapshot{}, fmt.Errorf("backup: pre-restore snapshot: %w", err)
	}

	entries, err := os.ReadDir(snap.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("backup: read snapshot %q: %w", snap.Name, err)
	}

	restored := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(snap.Path, e.Name())
		var dst string
		switch {
		case strings.HasSuffix(e.Name(), store.VectorFileExt):
			dst = filepath.Join(m.vault.Dir(), e.Name())
			restored++
		case m.registryPath != "" && e.Name() == filepath.Base(m.registryPath):
			dst = m.registryPath
		default:
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return Snapshot{}, fmt.Errorf("backup: restore %q: %w", e.Name(), err)
		}
	}

	slog.Info("snapshot restored", "name", snap.Name, "voiceprints", restored)
	return snap, nil
}

// RestoreIdentity restores only one identity's voiceprint file from the
// chosen snapshot. name may be [Latest].
func (m *Manager) RestoreIdentity(identity, name string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.findLocked(name)
	if err != nil {
		return Snapshot{}, err
	}

	fileName := filepath.Base(m.vault.PathFor(identity))
	src := filepath.Join(snap.Path, fileName)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, fmt.Errorf("%w: %q in %q", ErrIdentityNotInSnapshot, identity, snap.Name)
		}
		return Snapshot{}, fmt.Errorf("backup: stat %q: %w", src, err)
	}

	if err := copyFile(src, m.vault.PathFor(identity)); err != nil {
		return Snapshot{}, fmt.Errorf("backup: restore identity %q: %w", identity, err)
	}

	slog.Info("identity restored from snapshot", "identity", identity, "snapshot", snap.Name)
	return snap, nil
}

// findLocked resolves a snapshot by name or [Latest] and verifies its
// directory still exists.
func (m *Manager) findLocked(name string) (Snapshot, error) {
	history, err := m.loadHistory()
	if err != nil {
		return Snapshot{}, err
	}
	if len(history.Backups) == 0 {
		return Snapshot{}, ErrNoBackups
	}

	var snap Snapshot
	if name == "" || name == Latest {
		snap = history.Backups[len(history.Backups)-1]
	} else {
		found := false
		for _, b := range history.Backups {
			if b.Name == name {
				snap = b
				found = true
				break
			}
		}
		if !found {
			return Snapshot{}, fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
		}
	}

	if _, err := os.Stat(snap.Path); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %q (directory %q missing)", ErrSnapshotNotFound, snap.Name, snap.Path)
	}
	return snap, nil
}

func (m *Manager) loadHistory() (*historyFile, error) {
	data, err := os.ReadFile(m.historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &historyFile{MaxBackups: m.maxBackups}, nil
		}
		return nil, fmt.Errorf("backup: read history %q: %w", m.historyPath, err)
	}

	var h historyFile
	if err := yaml.Unmarshal(data, &h); err != nil {
		// A corrupt history must not block new backups; start a fresh
		// history but keep the broken file aside for hand recovery.
		broken := m.historyPath + ".corrupt"
		slog.Warn("backup history is corrupt, starting fresh", "path", m.historyPath, "kept", broken, "err", err)
		if renameErr := os.Rename(m.historyPath, broken); renameErr != nil {
			slog.Warn("failed to set corrupt history aside", "err", renameErr)
		}
		return &historyFile{MaxBackups: m.maxBackups}, nil
	}
	if h.MaxBackups <= 0 {
		h.MaxBackups = m.maxBackups
	}
	return &h, nil
}

// saveHistory writes the history atomically (temp file, then rename).
func (m *Manager) saveHistory(h *historyFile) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("backup: encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.historyPath), 0o755); err != nil {
		return fmt.Errorf("backup: create history dir: %w", err)
	}
	tmp := m.historyPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("backup: write history: %w", err)
	}
	if err := os.Rename(tmp, m.historyPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backup: commit history: %w", err)
	}
	return nil
}

// copyVaultFiles copies every voiceprint file from srcDir into dstDir and
// returns the copied file names.
func (m *Manager) copyVaultFiles(srcDir, dstDir string) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("backup: read vault dir %q: %w", srcDir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), store.VectorFileExt) {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, e.Name()), filepath.Join(dstDir, e.Name())); err != nil {
			return nil, fmt.Errorf("backup: copy %q: %w", e.Name(), err)
		}
		files = append(files, e.Name())
	}
	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyFileIfExists(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return copyFile(src, dst)
}
