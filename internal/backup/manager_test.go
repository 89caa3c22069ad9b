package backup_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcant0n/voxid/internal/backup"
	"github.com/marcant0n/voxid/internal/store"
)

func newTestManager(t *testing.T, maxBackups int) (*backup.Manager, *store.FileStore, string) {
	t.Helper()
	root := t.TempDir()
	vault, err := store.NewFileStore(filepath.Join(root, "vault"), 4)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	registryPath := filepath.Join(root, "roster.yaml")
	m := backup.NewManager(vault,
		registryPath,
		filepath.Join(root, "backups"),
		filepath.Join(root, "backup_history.yaml"),
		maxBackups,
	)
	return m, vault, registryPath
}

func TestCreateAndList(t *testing.T) {
	t.Parallel()

	m, vault, registryPath := newTestManager(t, 0)
	ctx := context.Background()

	if err := vault.Put(ctx, "faker", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.WriteFile(registryPath, []byte("version: \"1\"\n"), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}

	snap, err := m.Create(backup.ReasonManual)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if snap.Reason != backup.ReasonManual {
		t.Errorf("reason = %q, want %q", snap.Reason, backup.ReasonManual)
	}
	if len(snap.Files) != 1 || snap.Files[0] != "faker"+store.VectorFileExt {
		t.Errorf("files = %v, want [faker%s]", snap.Files, store.VectorFileExt)
	}
	if _, err := os.Stat(filepath.Join(snap.Path, "faker"+store.VectorFileExt)); err != nil {
		t.Errorf("voiceprint missing from snapshot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(snap.Path, "roster.yaml")); err != nil {
		t.Errorf("registry missing from snapshot: %v", err)
	}

	list, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != snap.Name {
		t.Errorf("List = %v, want one entry named %q", list, snap.Name)
	}
}

func TestCreateEvictsOldestBeyondLimit(t *testing.T) {
	t.Parallel()

	const limit = 3
	m, vault, _ := newTestManager(t, limit)
	ctx := context.Background()
	if err := vault.Put(ctx, "keria", []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var names []string
	var paths []string
	for i := 0; i < limit+2; i++ {
		snap, err := m.Create(backup.ReasonManual)
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		names = append(names, snap.Name)
		paths = append(paths, snap.Path)
	}

	list, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != limit {
		t.Fatalf("len(List) = %d, want %d", len(list), limit)
	}
	// Newest survive, oldest are gone from history and disk.
	for i, want := range names[2:] {
		if list[i].Name != want {
			t.Errorf("list[%d] = %q, want %q", i, list[i].Name, want)
		}
	}
	for _, old := range paths[:2] {
		if _, err := os.Stat(old); !os.IsNotExist(err) {
			t.Errorf("evicted snapshot dir %q still exists", old)
		}
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	m, vault, _ := newTestManager(t, 0)
	ctx := context.Background()

	original := []float32{1, 2, 3, 4}
	if err := vault.Put(ctx, "zeus", original); err != nil {
		t.Fatalf("Put: %v", err)
	}
	snap, err := m.Create(backup.ReasonManual)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Drift the live state.
	if err := vault.Put(ctx, "zeus", []float32{9, 9, 9, 9}); err != nil {
		t.Fatalf("Put drift: %v", err)
	}

	if _, err := m.Restore(snap.Name); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := vault.Get(ctx, "zeus")
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	for i := range original {
		if got[i] != original[i] {
			t.Fatalf("restored vector = %v, want %v", got, original)
		}
	}

	// The restore must have produced a pre_restore snapshot on top.
	list, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	last := list[len(list)-1]
	if last.Reason != backup.ReasonPreRestore {
		t.Errorf("last snapshot reason = %q, want %q", last.Reason, backup.ReasonPreRestore)
	}
}

func TestRestoreLatest(t *testing.T) {
	t.Parallel()

	m, vault, _ := newTestManager(t, 0)
	ctx := context.Background()

	if err := vault.Put(ctx, "oner", []float32{1, 0, 0, 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := m.Create(backup.ReasonManual); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := m.Create(backup.ReasonManual)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	snap, err := m.Restore(backup.Latest)
	if err != nil {
		t.Fatalf("Restore latest: %v", err)
	}
	if snap.Name != second.Name {
		t.Errorf("restored %q, want latest %q", snap.Name, second.Name)
	}
}

func TestRestoreIdentity(t *testing.T) {
	t.Parallel()

	m, vault, _ := newTestManager(t, 0)
	ctx := context.Background()

	if err := vault.Put(ctx, "gumayusi", []float32{0, 0, 1, 0}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := vault.Put(ctx, "doran", []float32{0, 1, 1, 0}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	snap, err := m.Create(backup.ReasonManual)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := vault.Put(ctx, "gumayusi", []float32{5, 5, 5, 5}); err != nil {
		t.Fatalf("Put drift: %v", err)
	}
	if err := vault.Put(ctx, "doran", []float32{6, 6, 6, 6}); err != nil {
		t.Fatalf("Put drift: %v", err)
	}

	if _, err := m.RestoreIdentity("gumayusi", snap.Name); err != nil {
		t.Fatalf("RestoreIdentity: %v", err)
	}

	got, err := vault.Get(ctx, "gumayusi")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got[2] != 1 {
		t.Errorf("gumayusi not restored: %v", got)
	}
	// The other identity must keep its drifted state.
	other, err := vault.Get(ctx, "doran")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if other[0] != 6 {
		t.Errorf("doran was touched by single-identity restore: %v", other)
	}
}

func TestRestoreErrors(t *testing.T) {
	t.Parallel()

	m, vault, _ := newTestManager(t, 0)
	ctx := context.Background()

	if _, err := m.Restore(backup.Latest); !errors.Is(err, backup.ErrNoBackups) {
		t.Errorf("Restore on empty history: err = %v, want ErrNoBackups", err)
	}

	if err := vault.Put(ctx, "peyz", []float32{1, 1, 0, 0}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	snap, err := m.Create(backup.ReasonManual)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := m.Restore("backup_19700101_000000_deadbeef"); !errors.Is(err, backup.ErrSnapshotNotFound) {
		t.Errorf("Restore unknown name: err = %v, want ErrSnapshotNotFound", err)
	}
	if _, err := m.RestoreIdentity("nobody", snap.Name); !errors.Is(err, backup.ErrIdentityNotInSnapshot) {
		t.Errorf("RestoreIdentity missing identity: err = %v, want ErrIdentityNotInSnapshot", err)
	}
}
