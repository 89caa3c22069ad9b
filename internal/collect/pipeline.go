// Package collect orchestrates voiceprint collection runs: it pulls
// candidate segments from the external supply, identifies them against the
// current store, buckets matches per identity, and commits only batches
// that clear the size and quality bar.
package collect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcant0n/voxid/internal/identify"
	"github.com/marcant0n/voxid/internal/learn"
	"github.com/marcant0n/voxid/internal/observe"
	"github.com/marcant0n/voxid/pkg/speaker"
	"github.com/marcant0n/voxid/pkg/supply"
)

// Mode tags how a collection run was initiated and selects its blend
// weight: trust in a batch follows trust in whoever asked for it.
type Mode string

const (
	// ModeAuto is a run initiated by normal automatic processing.
	ModeAuto Mode = "auto"

	// ModeManual is an operator-requested run, treated as near ground truth.
	ModeManual Mode = "manual"

	// ModeBackground is a re-collection run fired by the quality monitor;
	// it only nudges voiceprints.
	ModeBackground Mode = "background"
)

// Weight returns the learner blend weight for the mode.
func (m Mode) Weight() float64 {
	switch m {
	case ModeManual:
		return learn.WeightManual
	case ModeBackground:
		return learn.WeightBackground
	default:
		return learn.WeightAuto
	}
}

// source returns the provenance tag recorded in accuracy statistics.
func (m Mode) source() string {
	switch m {
	case ModeManual:
		return learn.SourceManual
	case ModeBackground:
		return learn.SourceBackground
	default:
		return learn.SourceAuto
	}
}

// Config holds the collection tunables.
type Config struct {
	// MinDuration drops segments shorter than this many seconds; very
	// short clips produce unreliable embeddings.
	MinDuration float64 `yaml:"min_duration"`

	// MinBatch is the smallest per-identity batch worth committing.
	MinBatch int `yaml:"min_batch"`

	// TopN caps a commit at the N highest-scoring segments of a bucket.
	TopN int `yaml:"top_n"`

	// MaxSegments bounds how many segments one run scans.
	MaxSegments int `yaml:"max_segments"`

	// Threshold is the score every segment in the committed subset must
	// clear. Usually the identifier's matching threshold.
	Threshold float64 `yaml:"threshold"`
}

// DefaultConfig returns the standard collection tunables.
func DefaultConfig() Config {
	return Config{
		MinDuration: 1.5,
		MinBatch:    3,
		TopN:        10,
		MaxSegments: 30,
		Threshold:   0.4,
	}
}

// Options selects the shape of one collection run.
type Options struct {
	// Identity restricts the run to one identity; empty collects for the
	// whole group.
	Identity string

	// Mode tags the run's provenance and picks the blend weight.
	Mode Mode

	// DryRun identifies and buckets but commits nothing. Used to preview
	// what a run would do.
	DryRun bool
}

// Stats summarises one collection run.
type Stats struct {
	Group string

	// Scanned is the number of segments pulled from the supply.
	Scanned int

	// Skipped counts segments dropped before identification (too short,
	// or no embedding).
	Skipped int

	// Matched counts segments identified to some identity.
	Matched int

	// Committed maps identity → number of segments folded into its
	// voiceprint. Empty buckets and dry runs commit nothing.
	Committed map[string]int

	// Rejected maps identity → reason for buckets that were not
	// committed ("batch_too_small" or "below_threshold").
	Rejected map[string]string
}

// Pipeline wires the supply, identifier, and learner into collection runs.
type Pipeline struct {
	cfg     Config
	source  supply.Source
	engine  *identify.Engine
	learner *learn.Learner
	metrics *observe.Metrics
}

// New creates a collection pipeline.
func New(cfg Config, src supply.Source, engine *identify.Engine, learner *learn.Learner) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		source:  src,
		engine:  engine,
		learner: learner,
		metrics: observe.DefaultMetrics(),
	}
}

// Collect runs one collection pass for a group.
func (p *Pipeline) Collect(ctx context.Context, session *learn.Session, group string, opts Options) (Stats, error) {
	ctx, span := observe.StartSpan(ctx, "collect.run")
	defer span.End()
	log := observe.Logger(ctx)

	start := time.Now()
	defer func() {
		p.metrics.CollectDuration.Record(ctx, time.Since(start).Seconds())
	}()

	stats := Stats{
		Group:     group,
		Committed: make(map[string]int),
		Rejected:  make(map[string]string),
	}

	segments, err := p.source.Segments(ctx, supply.Request{
		Group:       group,
		Identity:    opts.Identity,
		MaxSegments: p.cfg.MaxSegments,
	})
	if err != nil {
		return stats, fmt.Errorf("collect: segment supply for %q: %w", group, err)
	}
	if len(segments) > p.cfg.MaxSegments {
		segments = segments[:p.cfg.MaxSegments]
	}
	stats.Scanned = len(segments)

	buckets := make(map[string][]speaker.LabeledSegment)
	for _, seg := range segments {
		if seg.Embedding == nil || seg.Duration() < p.cfg.MinDuration {
			stats.Skipped++
			continue
		}
		labeled, err := p.engine.IdentifySegment(ctx, seg, group)
		if err != nil {
			return stats, fmt.Errorf("collect: identify segment: %w", err)
		}
		if !labeled.Identified() {
			continue
		}
		if opts.Identity != "" && labeled.Identity != opts.Identity {
			continue
		}
		stats.Matched++
		buckets[labeled.Identity] = append(buckets[labeled.Identity], labeled)
	}

	for identity, bucket := range buckets {
		subset, reason := p.selectBatch(bucket)
		if reason != "" {
			stats.Rejected[identity] = reason
			continue
		}
		if opts.DryRun {
			stats.Committed[identity] = len(subset)
			continue
		}

		batch := learn.Batch{Source: opts.Mode.source()}
		for _, s := range subset {
			batch.Embeddings = append(batch.Embeddings, s.Embedding)
			batch.Scores = append(batch.Scores, s.Score)
		}
		if err := p.learner.Update(ctx, session, identity, batch, opts.Mode.Weight()); err != nil {
			return stats, fmt.Errorf("collect: commit batch for %q: %w", identity, err)
		}
		stats.Committed[identity] = len(subset)
	}

	log.Info("collection run finished",
		"group", group, "mode", opts.Mode, "dry_run", opts.DryRun,
		"scanned", stats.Scanned, "skipped", stats.Skipped,
		"matched", stats.Matched, "committed", len(stats.Committed))
	return stats, nil
}

// selectBatch picks the subset of a bucket worth committing: the TopN
// highest-scoring segments, all of which must clear the threshold. A
// larger pool never beats a clean subset; borderline matches are left out
// rather than folded in.
func (p *Pipeline) selectBatch(bucket []speaker.LabeledSegment) ([]speaker.LabeledSegment, string) {
	if len(bucket) < p.cfg.MinBatch {
		return nil, "batch_too_small"
	}

	sorted := make([]speaker.LabeledSegment, len(bucket))
	copy(sorted, bucket)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	if p.cfg.TopN > 0 && len(sorted) > p.cfg.TopN {
		sorted = sorted[:p.cfg.TopN]
	}
	// The weakest member of the chosen subset gates the whole commit.
	if sorted[len(sorted)-1].Score < p.cfg.Threshold {
		return nil, "below_threshold"
	}
	return sorted, ""
}

// Recollect adapts the pipeline to the quality monitor's trigger callback:
// a background-mode run for the flagged group.
func (p *Pipeline) Recollect(session *learn.Session) func(ctx context.Context, group string) error {
	return func(ctx context.Context, group string) error {
		_, err := p.Collect(ctx, session, group, Options{Mode: ModeBackground})
		return err
	}
}

// collectAllLimit bounds concurrent group runs in [Pipeline.CollectAll].
const collectAllLimit = 3

// CollectAll runs collection for several groups concurrently. Per-group
// failures are collected; the first error is returned after all groups
// finish, alongside the stats of the groups that succeeded.
func (p *Pipeline) CollectAll(ctx context.Context, session *learn.Session, groups []string, opts Options) (map[string]Stats, error) {
	results := make([]Stats, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(collectAllLimit)

	for i, group := range groups {
		g.Go(func() error {
			stats, err := p.Collect(ctx, session, group, opts)
			results[i] = stats
			return err
		})
	}
	err := g.Wait()

	out := make(map[string]Stats, len(groups))
	for i, group := range groups {
		out[group] = results[i]
	}
	return out, err
}
