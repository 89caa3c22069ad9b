package quality_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcant0n/voxid/internal/quality"
	"github.com/marcant0n/voxid/pkg/speaker"
)

func labeled(identity string, conf speaker.Confidence) speaker.LabeledSegment {
	return speaker.LabeledSegment{Identity: identity, Confidence: conf}
}

func TestAssess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		segments      []speaker.LabeledSegment
		wantLevel     speaker.QualityLevel
		wantRecollect bool
	}{
		{
			name:          "empty session",
			segments:      nil,
			wantLevel:     speaker.QualityUnknown,
			wantRecollect: false,
		},
		{
			name: "mostly high",
			segments: []speaker.LabeledSegment{
				labeled("faker", speaker.ConfidenceHigh),
				labeled("faker", speaker.ConfidenceHigh),
				labeled("keria", speaker.ConfidenceHigh),
				labeled("oner", speaker.ConfidenceMedium),
			},
			wantLevel:     speaker.QualityHigh,
			wantRecollect: false,
		},
		{
			name: "medium share of high",
			segments: []speaker.LabeledSegment{
				labeled("faker", speaker.ConfidenceHigh),
				labeled("keria", speaker.ConfidenceMedium),
				labeled("oner", speaker.ConfidenceMedium),
			},
			wantLevel:     speaker.QualityMedium,
			wantRecollect: false,
		},
		{
			name: "low and unidentified dominate",
			segments: []speaker.LabeledSegment{
				labeled("faker", speaker.ConfidenceLow),
				labeled("", speaker.ConfidenceLow),
				labeled("", speaker.ConfidenceLow),
				labeled("keria", speaker.ConfidenceHigh),
			},
			wantLevel:     speaker.QualityLow,
			wantRecollect: true,
		},
		{
			name: "uncertain segments count as neither high nor low",
			segments: []speaker.LabeledSegment{
				labeled("faker", speaker.ConfidenceUncertain),
				labeled("keria", speaker.ConfidenceUncertain),
				labeled("oner", speaker.ConfidenceHigh),
			},
			wantLevel:     speaker.QualityMedium,
			wantRecollect: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rep := quality.Assess(tt.segments, 0)
			if rep.Level != tt.wantLevel {
				t.Errorf("level = %q, want %q", rep.Level, tt.wantLevel)
			}
			if rep.ShouldRecollect != tt.wantRecollect {
				t.Errorf("should_recollect = %v, want %v", rep.ShouldRecollect, tt.wantRecollect)
			}
			if rep.Total != len(tt.segments) {
				t.Errorf("total = %d, want %d", rep.Total, len(tt.segments))
			}
		})
	}
}

func TestAssessCounts(t *testing.T) {
	t.Parallel()

	rep := quality.Assess([]speaker.LabeledSegment{
		labeled("a", speaker.ConfidenceHigh),
		labeled("b", speaker.ConfidenceMedium),
		labeled("c", speaker.ConfidenceLow),
		labeled("d", speaker.ConfidenceUncertain),
		labeled("", speaker.ConfidenceLow),
	}, 0)

	if rep.High != 1 || rep.Medium != 1 || rep.Low != 1 || rep.Uncertain != 1 || rep.Unidentified != 1 {
		t.Errorf("counts = %+v, want one of each bucket", rep)
	}
}

func TestCooldownGate(t *testing.T) {
	t.Parallel()

	gate := quality.NewCooldownLog(filepath.Join(t.TempDir(), "cooldown.yaml"), time.Hour)

	ok, err := gate.TryAcquire("T1", "")
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = (%v, %v), want open gate", ok, err)
	}

	// Same group is now gated; another group is not.
	ok, err = gate.TryAcquire("T1", "")
	if err != nil || ok {
		t.Errorf("second TryAcquire = (%v, %v), want closed gate", ok, err)
	}
	ok, err = gate.TryAcquire("GEN", "")
	if err != nil || !ok {
		t.Errorf("other group TryAcquire = (%v, %v), want open gate", ok, err)
	}

	events, err := gate.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("history = %d events, want 2", len(events))
	}
}

func TestCooldownGateReopensAfterWindow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cooldown.yaml")
	gate := quality.NewCooldownLog(path, 50*time.Millisecond)

	if ok, _ := gate.TryAcquire("T1", ""); !ok {
		t.Fatal("first acquire refused")
	}
	if ok, _ := gate.TryAcquire("T1", ""); ok {
		t.Fatal("acquire inside window succeeded")
	}

	time.Sleep(60 * time.Millisecond)
	if ok, err := gate.TryAcquire("T1", ""); err != nil || !ok {
		t.Fatalf("acquire after window = (%v, %v), want open", ok, err)
	}
}

func TestCooldownGatePersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cooldown.yaml")
	first := quality.NewCooldownLog(path, time.Hour)
	if ok, _ := first.TryAcquire("T1", ""); !ok {
		t.Fatal("first acquire refused")
	}

	// A new process sees the same gate state.
	second := quality.NewCooldownLog(path, time.Hour)
	if ok, _ := second.TryAcquire("T1", ""); ok {
		t.Error("fresh instance acquired inside another instance's window")
	}
	if can, _ := second.CanTrigger("T1"); can {
		t.Error("CanTrigger = true inside window")
	}
}

func TestMonitorTriggersThroughGate(t *testing.T) {
	t.Parallel()

	gate := quality.NewCooldownLog(filepath.Join(t.TempDir(), "cooldown.yaml"), time.Hour)
	mon := quality.NewMonitor(0, gate, quality.SyncRunner{})

	poor := []speaker.LabeledSegment{
		labeled("", speaker.ConfidenceLow),
		labeled("", speaker.ConfidenceLow),
		labeled("faker", speaker.ConfidenceHigh),
	}

	var runs int
	recollect := func(ctx context.Context, group string) error {
		runs++
		if group != "T1" {
			t.Errorf("recollect group = %q, want T1", group)
		}
		return nil
	}

	rep, fired := mon.Review(context.Background(), "T1", poor, recollect)
	if !rep.ShouldRecollect || !fired || runs != 1 {
		t.Fatalf("first review: recollect=%v fired=%v runs=%d, want advice+launch", rep.ShouldRecollect, fired, runs)
	}

	// Second poor session inside the window is refused by the gate.
	_, fired = mon.Review(context.Background(), "T1", poor, recollect)
	if fired || runs != 1 {
		t.Errorf("second review: fired=%v runs=%d, want gate refusal", fired, runs)
	}
}

func TestMonitorFailedRunKeepsCooldown(t *testing.T) {
	t.Parallel()

	gate := quality.NewCooldownLog(filepath.Join(t.TempDir(), "cooldown.yaml"), time.Hour)
	mon := quality.NewMonitor(0, gate, quality.SyncRunner{})

	poor := []speaker.LabeledSegment{labeled("", speaker.ConfidenceLow)}
	failing := func(ctx context.Context, group string) error {
		return errors.New("supply unavailable")
	}

	if _, fired := mon.Review(context.Background(), "T1", poor, failing); !fired {
		t.Fatal("first review did not fire")
	}
	// The failure must not re-open the gate.
	if _, fired := mon.Review(context.Background(), "T1", poor, failing); fired {
		t.Error("gate re-opened after failed run")
	}
}

func TestMonitorGoodSessionDoesNotTrigger(t *testing.T) {
	t.Parallel()

	gate := quality.NewCooldownLog(filepath.Join(t.TempDir(), "cooldown.yaml"), time.Hour)
	mon := quality.NewMonitor(0, gate, quality.SyncRunner{})

	good := []speaker.LabeledSegment{
		labeled("faker", speaker.ConfidenceHigh),
		labeled("keria", speaker.ConfidenceHigh),
	}
	var runs int
	_, fired := mon.Review(context.Background(), "T1", good, func(ctx context.Context, group string) error {
		runs++
		return nil
	})
	if fired || runs != 0 {
		t.Errorf("good session fired re-collection (fired=%v runs=%d)", fired, runs)
	}
}
