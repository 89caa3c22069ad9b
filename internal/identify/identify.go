// Package identify maps an embedding to the best-matching known identity
// with a confidence classification, applying role-keyword disambiguation
// when the top two candidates are nearly tied.
package identify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/marcant0n/voxid/internal/observe"
	"github.com/marcant0n/voxid/internal/roster"
	"github.com/marcant0n/voxid/internal/store"
	"github.com/marcant0n/voxid/pkg/speaker"
)

// Config holds the identification tunables. The defaults are empirically
// chosen working values, not derived constants; treat them as a starting
// point for per-deployment tuning.
type Config struct {
	// Threshold is the minimum similarity for a match to count as
	// identified at all.
	Threshold float64 `yaml:"threshold"`

	// HighCut and MediumCut classify the absolute score: above HighCut is
	// high confidence, above MediumCut is medium, anything else low.
	HighCut   float64 `yaml:"high_cut"`
	MediumCut float64 `yaml:"medium_cut"`

	// Margin is the near-tie window: when the top two scores are closer
	// than this the result is uncertain and disambiguation kicks in.
	Margin float64 `yaml:"margin"`

	// KeywordBonus is the ranking bonus granted to a near-tied candidate
	// whose role matches a keyword found in the transcript text. It only
	// re-ranks the tied pair; reported scores are never inflated by it.
	KeywordBonus float64 `yaml:"keyword_bonus"`
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		Threshold:    0.4,
		HighCut:      0.5,
		MediumCut:    0.4,
		Margin:       0.08,
		KeywordBonus: 0.05,
	}
}

// Result is the outcome of one identification.
type Result struct {
	// Identity is the matched identity, or empty when the segment is
	// unidentified. Unidentified is a normal outcome, not an error.
	Identity string

	// Score is the raw cosine similarity of the returned candidate,
	// before any disambiguation bonus.
	Score float64

	// Confidence classifies the match strength.
	Confidence speaker.Confidence
}

// Engine ranks embeddings against a candidate set. It is stateless apart
// from its configuration and collaborators, so one Engine can serve
// concurrent callers.
type Engine struct {
	cfg      Config
	store    store.Store
	registry *roster.Registry
	metrics  *observe.Metrics
}

// New creates an identification engine over the given voiceprint store and
// identity registry.
func New(cfg Config, st store.Store, reg *roster.Registry) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		registry: reg,
		metrics:  observe.DefaultMetrics(),
	}
}

// scored pairs one candidate with its similarity and any re-rank bonus.
type scored struct {
	identity string
	score    float64
	bonus    float64
}

// Identify ranks the embedding against the given candidates and returns the
// best match. textHint is optional transcript text used only for near-tie
// disambiguation; groupHint restricts the keyword bonus to members of that
// group. Candidates with a mismatched dimension are excluded from ranking
// rather than failing the whole call.
func (e *Engine) Identify(ctx context.Context, embedding []float32, candidates map[string][]float32, textHint, groupHint string) Result {
	start := time.Now()
	defer func() {
		e.metrics.IdentifyDuration.Record(ctx, time.Since(start).Seconds())
	}()

	res := e.rank(ctx, embedding, candidates, textHint, groupHint)
	e.metrics.RecordIdentification(ctx, string(res.Confidence), res.Identity != "")
	return res
}

func (e *Engine) rank(ctx context.Context, embedding []float32, candidates map[string][]float32, textHint, groupHint string) Result {
	query := toFloat64(embedding)
	queryNorm := floats.Norm(query, 2)

	ranked := make([]scored, 0, len(candidates))
	for identity, vec := range candidates {
		if len(vec) != len(embedding) {
			observe.Logger(ctx).Warn("excluding candidate with mismatched dimension",
				"identity", identity, "dim", len(vec), "want", len(embedding))
			continue
		}
		ranked = append(ranked, scored{
			identity: identity,
			score:    cosine(query, queryNorm, vec),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].identity < ranked[j].identity
	})
	return e.decide(ranked, textHint, groupHint)
}

// decide applies the threshold gate, confidence classification, and
// near-tie disambiguation to an already sorted ranking.
func (e *Engine) decide(ranked []scored, textHint, groupHint string) Result {
	if len(ranked) == 0 {
		// No known speakers yet is a normal startup state.
		return Result{Score: 0, Confidence: speaker.ConfidenceLow}
	}

	best := ranked[0]
	if best.score < e.cfg.Threshold {
		return Result{Score: best.score, Confidence: speaker.ConfidenceLow}
	}

	conf := e.classify(best.score)

	if len(ranked) > 1 && best.score-ranked[1].score < e.cfg.Margin {
		best = e.disambiguate(best, ranked[1], textHint, groupHint)
		conf = speaker.ConfidenceUncertain
	}

	return Result{Identity: best.identity, Score: best.score, Confidence: conf}
}

func (e *Engine) classify(score float64) speaker.Confidence {
	switch {
	case score > e.cfg.HighCut:
		return speaker.ConfidenceHigh
	case score > e.cfg.MediumCut:
		return speaker.ConfidenceMedium
	default:
		return speaker.ConfidenceLow
	}
}

// disambiguate re-ranks a near-tied pair using role keywords found in the
// transcript text. The bonus is applied only to the tied pair and only to
// members of the group hint (when given); the winner's reported score stays
// its raw similarity.
func (e *Engine) disambiguate(best, second scored, textHint, groupHint string) scored {
	if textHint == "" || e.registry == nil {
		return best
	}

	var members map[string]bool
	if groupHint != "" {
		members = make(map[string]bool)
		for _, m := range e.registry.Members(groupHint) {
			members[m] = true
		}
	}

	pair := []*scored{&best, &second}
	for role, tokens := range e.registry.Keywords() {
		matched := false
		for _, tok := range tokens {
			if strings.Contains(textHint, tok) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, c := range pair {
			if members != nil && !members[strings.ToLower(c.identity)] {
				continue
			}
			if strings.EqualFold(e.registry.RoleOf(c.identity), role) {
				c.bonus += e.cfg.KeywordBonus
			}
		}
	}

	if second.score+second.bonus > best.score+best.bonus {
		return second
	}
	return best
}

// nearestK is how many server-side matches the Searcher fast path pulls;
// the decision logic only ever inspects the top two, but a few extras keep
// the ranking stable when scores are quantised.
const nearestK = 10

// IdentifySegment identifies one segment against the store's current
// voiceprints and returns it labeled. When group is non-empty, the
// candidate set is restricted to that group's members. A store that can
// rank server-side ([store.Searcher]) is used directly for unscoped calls
// instead of pulling the whole working set.
func (e *Engine) IdentifySegment(ctx context.Context, seg speaker.Segment, group string) (speaker.LabeledSegment, error) {
	ctx, span := observe.StartSpan(ctx, "identify.segment")
	defer span.End()

	var res Result
	if searcher, ok := e.store.(store.Searcher); ok && group == "" {
		var err error
		res, err = e.identifyNearest(ctx, searcher, seg)
		if err != nil {
			return speaker.LabeledSegment{}, err
		}
	} else {
		candidates, err := e.candidates(ctx, group)
		if err != nil {
			return speaker.LabeledSegment{}, err
		}
		res = e.Identify(ctx, seg.Embedding, candidates, seg.Text, group)
	}
	return speaker.LabeledSegment{
		Segment:    seg,
		Identity:   res.Identity,
		Score:      res.Score,
		Confidence: res.Confidence,
	}, nil
}

// identifyNearest ranks via the store's server-side search and applies the
// same decision logic as the in-process path.
func (e *Engine) identifyNearest(ctx context.Context, searcher store.Searcher, seg speaker.Segment) (Result, error) {
	start := time.Now()
	defer func() {
		e.metrics.IdentifyDuration.Record(ctx, time.Since(start).Seconds())
	}()

	matches, err := searcher.Nearest(ctx, seg.Embedding, nearestK)
	if err != nil {
		return Result{}, fmt.Errorf("identify: server-side search: %w", err)
	}
	ranked := make([]scored, len(matches))
	for i, m := range matches {
		ranked[i] = scored{identity: m.Identity, score: m.Score}
	}

	res := e.decide(ranked, seg.Text, "")
	e.metrics.RecordIdentification(ctx, string(res.Confidence), res.Identity != "")
	return res, nil
}

// candidates loads the in-scope candidate set from the store.
func (e *Engine) candidates(ctx context.Context, group string) (map[string][]float32, error) {
	all, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if group == "" || e.registry == nil {
		return all, nil
	}

	scoped := make(map[string][]float32)
	for _, m := range e.registry.Members(group) {
		if vec, ok := all[m]; ok {
			scoped[m] = vec
		}
	}
	if len(scoped) == 0 {
		slog.Debug("no stored voiceprints for group", "group", group)
	}
	return scoped, nil
}

// cosine computes dot(a,b) / (|a| * |b|). A zero-norm vector scores 0.
func cosine(query []float64, queryNorm float64, candidate []float32) float64 {
	cand := toFloat64(candidate)
	candNorm := floats.Norm(cand, 2)
	if queryNorm == 0 || candNorm == 0 {
		return 0
	}
	return floats.Dot(query, cand) / (queryNorm * candNorm)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
