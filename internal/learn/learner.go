// Package learn updates stored voiceprints from batches of embeddings.
//
// An update blends the batch mean into the existing voiceprint with a
// caller-chosen weight. The weight is confidence-tiered by how the batch
// was obtained: a human-confirmed correction carries the most trust, an
// automatic high-confidence batch less, a background batch the least. The
// learner never picks the weight itself.
package learn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/floats"

	"github.com/marcant0n/voxid/internal/backup"
	"github.com/marcant0n/voxid/internal/observe"
	"github.com/marcant0n/voxid/internal/roster"
	"github.com/marcant0n/voxid/internal/store"
)

// Blend weights by batch provenance.
const (
	// WeightManual applies to interactive, human-confirmed corrections.
	WeightManual = 0.3

	// WeightAuto applies to automatic high-confidence batches.
	WeightAuto = 0.15

	// WeightBackground applies to background re-collection batches, which
	// should only nudge a voiceprint.
	WeightBackground = 0.05
)

// Batch provenance tags recorded in the registry's accuracy statistics.
const (
	SourceManual     = "manual"
	SourceAuto       = "auto"
	SourceBackground = "background"
)

// ErrEmptyBatch means Update was called with no embeddings; the voiceprint
// is left untouched.
var ErrEmptyBatch = errors.New("learn: empty batch")

// Batch is one set of embeddings attributed to a single identity, together
// with the similarity scores they achieved during identification.
type Batch struct {
	// Embeddings are the segment embeddings to fold into the voiceprint.
	Embeddings [][]float32

	// Scores are the raw similarity scores, index-aligned with Embeddings.
	// They feed the identity's accuracy statistics, never the blend itself.
	Scores []float64

	// Source tags how the batch was obtained (SourceManual, SourceAuto,
	// SourceBackground).
	Source string
}

// Session scopes the one-shot automatic backup. The first mutation of an
// existing voiceprint within a session snapshots the store with reason
// auto_before_update; later mutations in the same session do not.
type Session struct {
	mu       sync.Mutex
	id       string
	backedUp bool
}

// NewSession starts a fresh processing session.
func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

// ID returns the session identifier, for log correlation.
func (s *Session) ID() string { return s.id }

// Reset re-arms the automatic backup, starting a new session under a new ID.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.backedUp = false
}

// markBackedUp reports whether this call won the right to take the session
// backup. Exactly one caller per session gets true.
func (s *Session) markBackedUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backedUp {
		return false
	}
	s.backedUp = true
	return true
}

// Learner folds embedding batches into stored voiceprints.
type Learner struct {
	store    store.Store
	registry *roster.Registry
	backups  *backup.Manager
	metrics  *observe.Metrics
}

// New creates a Learner. backups may be nil, in which case no automatic
// pre-update snapshot is taken (used with store backends that do not
// support file-level backups).
func New(st store.Store, reg *roster.Registry, backups *backup.Manager) *Learner {
	return &Learner{
		store:    st,
		registry: reg,
		backups:  backups,
		metrics:  observe.DefaultMetrics(),
	}
}

// Update folds a batch into the identity's voiceprint.
//
// With an existing voiceprint, the result is (1-weight)*existing +
// weight*mean(batch), renormalised to the existing vector's norm so the
// stored scale never drifts. A first-time identity stores the raw batch
// mean. The registry's accuracy statistics are updated and saved in the
// same call.
func (l *Learner) Update(ctx context.Context, session *Session, identity string, batch Batch, weight float64) error {
	if len(batch.Embeddings) == 0 {
		return ErrEmptyBatch
	}

	ctx, span := observe.StartSpan(ctx, "learn.update")
	defer span.End()
	log := observe.Logger(ctx)

	mean, err := batchMean(batch.Embeddings)
	if err != nil {
		return fmt.Errorf("learn: %q: %w", identity, err)
	}

	existing, err := l.store.Get(ctx, identity)
	switch {
	case err == nil:
		if len(mean) != len(existing) {
			return fmt.Errorf("learn: %q: batch dimension %d, stored voiceprint has %d: %w",
				identity, len(mean), len(existing), store.ErrDimensionMismatch)
		}
		if session != nil && l.backups != nil && session.markBackedUp() {
			if _, err := l.backups.Create(backup.ReasonAutoBeforeUpdate); err != nil {
				// Losing the safety net is worth failing the update for.
				session.Reset()
				return fmt.Errorf("learn: pre-update backup: %w", err)
			}
			log.Info("session backup taken before first voiceprint update",
				"session", session.ID())
		}
		mean = blend(existing, mean, weight)
	case errors.Is(err, store.ErrNotFound):
		// First-time creation: store the raw mean, no blending.
	default:
		return fmt.Errorf("learn: load voiceprint %q: %w", identity, err)
	}

	if err := l.store.Put(ctx, identity, mean); err != nil {
		return fmt.Errorf("learn: persist voiceprint %q: %w", identity, err)
	}

	batchMax, batchAvg := scoreStats(batch.Scores)
	l.registry.RecordCommit(identity, batchMax, batchAvg, batch.Source, len(batch.Embeddings))
	if err := l.registry.Save(); err != nil {
		return fmt.Errorf("learn: save registry: %w", err)
	}

	l.metrics.LearnerCommits.Add(ctx, 1, metric.WithAttributes(
		observe.Attr("source", batch.Source)))
	log.Info("voiceprint updated",
		"identity", identity, "segments", len(batch.Embeddings),
		"weight", weight, "source", batch.Source)
	return nil
}

// batchMean computes the arithmetic mean of the batch in float64.
func batchMean(embeddings [][]float32) ([]float32, error) {
	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d: %w",
				i, len(e), dim, store.ErrDimensionMismatch)
		}
		for j, v := range e {
			sum[j] += float64(v)
		}
	}
	floats.Scale(1/float64(len(embeddings)), sum)
	return toFloat32(sum), nil
}

// blend mixes newVec into existing by weight and renormalises the result to
// the existing vector's norm, so only direction changes.
func blend(existing, newVec []float32, weight float64) []float32 {
	ex := toFloat64(existing)
	nv := toFloat64(newVec)

	combined := make([]float64, len(ex))
	floats.AddScaled(combined, 1-weight, ex)
	floats.AddScaled(combined, weight, nv)

	oldNorm := floats.Norm(ex, 2)
	newNorm := floats.Norm(combined, 2)
	if oldNorm > 0 && newNorm > 0 {
		floats.Scale(oldNorm/newNorm, combined)
	}
	return toFloat32(combined)
}

func scoreStats(scores []float64) (max, avg float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	max = floats.Max(scores)
	avg = floats.Sum(scores) / float64(len(scores))
	return max, avg
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
