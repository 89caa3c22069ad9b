package identify_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/marcant0n/voxid/internal/identify"
	"github.com/marcant0n/voxid/internal/roster"
	"github.com/marcant0n/voxid/internal/store"
	"github.com/marcant0n/voxid/pkg/speaker"
)

// vecFor builds a unit vector whose cosine similarity against the probe
// (1,0,0,0) is exactly sim: (sim, sqrt(1-sim²), 0, 0).
func vecFor(sim float64) []float32 {
	other := 1 - sim*sim
	if other < 0 {
		other = 0
	}
	return []float32{float32(sim), float32(math.Sqrt(other)), 0, 0}
}

var probe = []float32{1, 0, 0, 0}

func testRegistry(t *testing.T) *roster.Registry {
	t.Helper()
	reg := roster.New(filepath.Join(t.TempDir(), "roster.yaml"))
	reg.Sync(&roster.Official{
		Version: "test",
		Teams: map[string]map[string]string{
			"T1": {
				"top":     "Doran",
				"jungle":  "Oner",
				"mid":     "Faker",
				"adc":     "Gumayusi",
				"support": "Keria",
			},
		},
	})
	return reg
}

func newEngine(t *testing.T, cfg identify.Config) (*identify.Engine, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return identify.New(cfg, st, testRegistry(t)), st
}

func TestIdentifyClearWinner(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, identify.DefaultConfig())
	candidates := map[string][]float32{
		"faker": vecFor(0.72),
		"oner":  vecFor(0.30),
	}

	res := e.Identify(context.Background(), probe, candidates, "", "")
	if res.Identity != "faker" {
		t.Fatalf("identity = %q, want faker", res.Identity)
	}
	if res.Confidence != speaker.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", res.Confidence)
	}
	if res.Score < 0.71 || res.Score > 0.73 {
		t.Errorf("score = %v, want ≈0.72", res.Score)
	}
}

func TestIdentifyBelowThresholdIsUnidentified(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, identify.DefaultConfig())
	candidates := map[string][]float32{
		"faker": vecFor(0.35),
	}

	res := e.Identify(context.Background(), probe, candidates, "", "")
	if res.Identity != "" {
		t.Errorf("identity = %q, want unidentified", res.Identity)
	}
	if res.Confidence != speaker.ConfidenceLow {
		t.Errorf("confidence = %q, want low", res.Confidence)
	}
	// The best score is still reported for diagnostics.
	if res.Score < 0.34 || res.Score > 0.36 {
		t.Errorf("score = %v, want ≈0.35", res.Score)
	}
}

func TestIdentifyEmptyCandidateSet(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, identify.DefaultConfig())
	res := e.Identify(context.Background(), probe, nil, "", "")
	if res.Identity != "" || res.Score != 0 || res.Confidence != speaker.ConfidenceLow {
		t.Errorf("got %+v, want empty/0/low", res)
	}
}

func TestIdentifyNearTieWithRoleKeyword(t *testing.T) {
	t.Parallel()

	// Scenario: two candidates at 0.52 and 0.48 (margin 0.04 < 0.08) and a
	// transcript containing a jungle call-out. The jungler among the tied
	// pair wins the re-rank, but the reported score stays the raw
	// similarity of the winner.
	e, _ := newEngine(t, identify.DefaultConfig())
	candidates := map[string][]float32{
		"faker": vecFor(0.52), // mid
		"oner":  vecFor(0.48), // jungle
	}

	res := e.Identify(context.Background(), probe, candidates, "정글 갱 가자", "T1")
	if res.Identity != "oner" {
		t.Fatalf("identity = %q, want oner (jungle keyword should re-rank)", res.Identity)
	}
	if res.Confidence != speaker.ConfidenceUncertain {
		t.Errorf("confidence = %q, want uncertain", res.Confidence)
	}
	if res.Score < 0.47 || res.Score > 0.49 {
		t.Errorf("score = %v, want oner's raw ≈0.48, not a bonus-inflated value", res.Score)
	}
}

func TestIdentifyNearTieNoTextHintKeepsOrder(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, identify.DefaultConfig())
	candidates := map[string][]float32{
		"faker": vecFor(0.44),
		"oner":  vecFor(0.41),
	}

	res := e.Identify(context.Background(), probe, candidates, "", "T1")
	if res.Identity != "faker" {
		t.Errorf("identity = %q, want faker (no hint, ordering unchanged)", res.Identity)
	}
	if res.Confidence != speaker.ConfidenceUncertain {
		t.Errorf("confidence = %q, want uncertain", res.Confidence)
	}
}

func TestIdentifyExcludesMismatchedDimension(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, identify.DefaultConfig())
	candidates := map[string][]float32{
		"faker": vecFor(0.9),
		"oner":  {1, 0, 0}, // wrong dimension, must be skipped not fatal
	}

	res := e.Identify(context.Background(), probe, candidates, "", "")
	if res.Identity != "faker" {
		t.Errorf("identity = %q, want faker", res.Identity)
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	t.Parallel()

	candidates := map[string][]float32{
		"a": vecFor(0.30),
		"b": vecFor(0.45),
		"c": vecFor(0.62),
		"d": vecFor(0.80),
	}
	probes := [][]float32{probe}

	identifiedAt := func(threshold float64) int {
		cfg := identify.DefaultConfig()
		cfg.Threshold = threshold
		e, _ := newEngine(t, cfg)
		n := 0
		for _, p := range probes {
			if e.Identify(context.Background(), p, candidates, "", "").Identity != "" {
				n++
			}
		}
		return n
	}

	prev := identifiedAt(0.0)
	for _, th := range []float64{0.2, 0.4, 0.6, 0.9, 1.1} {
		cur := identifiedAt(th)
		if cur > prev {
			t.Fatalf("raising threshold to %v increased identified count %d -> %d", th, prev, cur)
		}
		prev = cur
	}
}

func TestIdentifySegmentScopesToGroup(t *testing.T) {
	t.Parallel()

	e, st := newEngine(t, identify.DefaultConfig())
	ctx := context.Background()

	// A very strong match outside the group must not be considered.
	if err := st.Put(ctx, "chovy", probe); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Put(ctx, "faker", vecFor(0.6)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	labeled, err := e.IdentifySegment(ctx, speaker.Segment{
		Start: 0, End: 2.5, Embedding: probe,
	}, "T1")
	if err != nil {
		t.Fatalf("IdentifySegment: %v", err)
	}
	if labeled.Identity != "faker" {
		t.Errorf("identity = %q, want faker (chovy is outside group T1)", labeled.Identity)
	}
	if !labeled.Identified() {
		t.Error("labeled.Identified() = false, want true")
	}
}
