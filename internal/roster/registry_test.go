package roster_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcant0n/voxid/internal/roster"
)

func testOfficial() *roster.Official {
	return &roster.Official{
		Version: "2026-01-25",
		Source:  "LCK 2026 Spring Official",
		Teams: map[string]map[string]string{
			"T1": {
				"top": "Doran", "jungle": "Oner", "mid": "Faker",
				"adc": "Peyz", "support": "Keria",
			},
			"GenG": {
				"top": "Kiin", "jungle": "Canyon", "mid": "Chovy",
				"adc": "Ruler", "support": "Duro",
			},
		},
	}
}

func TestSync(t *testing.T) {
	t.Parallel()

	r := roster.New(filepath.Join(t.TempDir(), "roster.yaml"))
	r.Sync(testOfficial())

	t.Run("members in role order", func(t *testing.T) {
		got := r.Members("T1")
		want := []string{"doran", "oner", "faker", "peyz", "keria"}
		if len(got) != len(want) {
			t.Fatalf("Members(T1) = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Members(T1) = %v, want %v", got, want)
			}
		}
	})

	t.Run("team and role lookups", func(t *testing.T) {
		if team := r.TeamOf("Faker"); team != "T1" {
			t.Errorf("TeamOf(Faker) = %q, want T1", team)
		}
		if role := r.RoleOf("canyon"); role != "jungle" {
			t.Errorf("RoleOf(canyon) = %q, want jungle", role)
		}
		if team := r.TeamOf("nobody"); team != "" {
			t.Errorf("TeamOf(nobody) = %q, want empty", team)
		}
	})

	t.Run("unknown group has no members", func(t *testing.T) {
		if got := r.Members("DRX"); got != nil {
			t.Errorf("Members(DRX) = %v, want nil", got)
		}
	})
}

func TestSyncMovesTransferredIdentity(t *testing.T) {
	t.Parallel()

	r := roster.New(filepath.Join(t.TempDir(), "roster.yaml"))
	r.Sync(testOfficial())

	// Faker "transfers" to GenG in the next roster revision.
	next := testOfficial()
	next.Teams["GenG"]["mid"] = "Faker"
	next.Teams["T1"]["mid"] = "Poby"

	changes := r.Sync(next)
	if r.TeamOf("faker") != "GenG" {
		t.Fatalf("TeamOf(faker) = %q after sync, want GenG", r.TeamOf("faker"))
	}
	found := false
	for _, c := range changes {
		if strings.Contains(c, "Faker") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Sync changes = %v, want an entry for Faker", changes)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	r := roster.New(filepath.Join(t.TempDir(), "roster.yaml"))
	r.Sync(testOfficial())

	// Manufacture a mismatch by syncing against a stale roster afterwards.
	stale := testOfficial()
	stale.Teams["T1"]["mid"] = "Poby" // Faker no longer listed

	issues := r.Validate(stale)
	if len(issues) != 1 {
		t.Fatalf("Validate: got %d issues (%v), want 1", len(issues), issues)
	}
	if issues[0].Kind != "unknown_identity" || issues[0].Identity != "Faker" {
		t.Fatalf("Validate: got %+v, want unknown_identity for Faker", issues[0])
	}
}

func TestRecordCommit(t *testing.T) {
	t.Parallel()

	r := roster.New(filepath.Join(t.TempDir(), "roster.yaml"))
	r.Sync(testOfficial())

	r.RecordCommit("faker", 0.71, 0.55, "diarization_matched", 10)
	id, err := r.Get("Faker")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if id.Accuracy == nil {
		t.Fatal("Get: accuracy block missing after commit")
	}
	if id.Accuracy.Max != 0.71 {
		t.Errorf("Max = %v, want 0.71", id.Accuracy.Max)
	}
	if id.Accuracy.Avg != 0.55 {
		t.Errorf("Avg = %v, want 0.55 on first commit", id.Accuracy.Avg)
	}
	if id.Accuracy.Level != roster.LevelHigh {
		t.Errorf("Level = %v, want high", id.Accuracy.Level)
	}

	// Second commit folds the averages and keeps the larger max.
	r.RecordCommit("faker", 0.60, 0.45, "team_voice", 5)
	id, _ = r.Get("faker")
	if id.Accuracy.Max != 0.71 {
		t.Errorf("Max = %v after weaker batch, want 0.71 retained", id.Accuracy.Max)
	}
	if got, want := id.Accuracy.Avg, (0.55+0.45)/2; got != want {
		t.Errorf("Avg = %v, want %v", got, want)
	}
	if id.Accuracy.Segments != 5 {
		t.Errorf("Segments = %d, want 5", id.Accuracy.Segments)
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()

	r := roster.New(filepath.Join(t.TempDir(), "roster.yaml"))
	_, err := r.Get("ghost")
	if !errors.Is(err, roster.ErrUnknownIdentity) {
		t.Fatalf("Get: expected ErrUnknownIdentity, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.yaml")
	r := roster.New(path)
	r.Sync(testOfficial())
	r.RecordCommit("chovy", 0.6, 0.5, "manual_correction", 3)
	if err := r.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := roster.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.TeamOf("chovy") != "GenG" {
		t.Errorf("TeamOf(chovy) = %q after reload, want GenG", loaded.TeamOf("chovy"))
	}
	id, err := loaded.Get("chovy")
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if id.Accuracy == nil || id.Accuracy.Level != roster.LevelHigh {
		t.Errorf("accuracy not preserved across reload: %+v", id.Accuracy)
	}
}

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	t.Parallel()

	r, err := roster.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if teams := r.Teams(); len(teams) != 0 {
		t.Fatalf("Teams = %v, want empty", teams)
	}
}

func TestQuality(t *testing.T) {
	t.Parallel()

	r := roster.New(filepath.Join(t.TempDir(), "roster.yaml"))
	r.Sync(testOfficial())
	r.RecordCommit("faker", 0.7, 0.6, "team_voice", 10) // high
	r.RecordCommit("oner", 0.4, 0.30, "team_voice", 4)  // low

	vault := map[string][]float32{
		"faker": {1}, "oner": {1}, "keria": {1}, // doran, peyz missing
	}
	q := r.Quality("T1", vault)

	if len(q.High) != 1 || q.High[0] != "faker" {
		t.Errorf("High = %v, want [faker]", q.High)
	}
	if len(q.Low) != 1 || q.Low[0] != "oner" {
		t.Errorf("Low = %v, want [oner]", q.Low)
	}
	if len(q.New) != 1 || q.New[0] != "keria" {
		t.Errorf("New = %v, want [keria]", q.New)
	}
	if len(q.Missing) != 2 {
		t.Errorf("Missing = %v, want doran and peyz", q.Missing)
	}
	if got := q.NeedsImprovement(); len(got) != 4 {
		t.Errorf("NeedsImprovement = %v, want 4 entries", got)
	}
}

func TestKeywordsFallBackToDefaults(t *testing.T) {
	t.Parallel()

	r := roster.New(filepath.Join(t.TempDir(), "roster.yaml"))
	kw := r.Keywords()
	if len(kw["jungle"]) == 0 {
		t.Fatal("Keywords: expected default jungle tokens")
	}
}
