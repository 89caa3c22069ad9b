// Package roster holds the identity registry: which identities exist, which
// group (team) and role each belongs to, the rolling accuracy statistics of
// their voiceprints, and the role-keyword hints used by the identifier's
// disambiguation step.
//
// Group and role data originate from an externally maintained official
// roster (see [Official] and [Registry.Sync]); the registry never invents
// membership on its own. Role tags are a soft disambiguation signal only,
// never ground truth.
package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrUnknownIdentity is returned when an identity is not in the registry.
var ErrUnknownIdentity = errors.New("roster: unknown identity")

// Level is the qualitative quality classification of a stored voiceprint.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
	// LevelNew marks an identity whose voiceprint has never been through a
	// batch commit, so no accuracy statistics exist yet.
	LevelNew Level = "new"
)

// Accuracy is the rolling statistics block attached to each identity.
// It is mutated on every learner commit and read by quality reporting.
type Accuracy struct {
	// Max is the highest similarity ever observed in a committed batch.
	Max float64 `yaml:"max"`

	// Avg is the running average similarity, folded in per commit as
	// (previous avg + batch avg) / 2.
	Avg float64 `yaml:"avg"`

	// Level classifies Avg: high ≥ 0.5, medium ≥ 0.35, low otherwise.
	Level Level `yaml:"level"`

	// Source records how the voiceprint was last improved
	// (e.g. "diarization_matched", "manual_correction").
	Source string `yaml:"source,omitempty"`

	// Segments is the size of the last committed batch.
	Segments int `yaml:"segments,omitempty"`
}

// ClassifyLevel maps a running average similarity to a quality level.
// The cuts (0.5 / 0.35) are the registry's accuracy tiers and are distinct
// from the identifier's per-segment confidence cuts.
func ClassifyLevel(avg float64) Level {
	switch {
	case avg >= 0.5:
		return LevelHigh
	case avg >= 0.35:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Identity is one registered speaker.
type Identity struct {
	// Name is the display form (e.g. "Faker"); the registry key is its
	// lower-cased form.
	Name string `yaml:"name"`

	// Team is the group the identity belongs to (e.g. "T1").
	Team string `yaml:"team,omitempty"`

	// Role is the in-group role tag (e.g. "mid"), used only as a soft
	// disambiguation hint.
	Role string `yaml:"role,omitempty"`

	// Accuracy is nil until the first batch commit.
	Accuracy *Accuracy `yaml:"accuracy,omitempty"`
}

// Team groups an ordered member list with per-member roles.
type Team struct {
	// Players lists member display names in roster order.
	Players []string `yaml:"players"`

	// Roles maps member display name to role tag.
	Roles map[string]string `yaml:"roles,omitempty"`
}

// Registry is the in-memory identity registry, loaded from and saved to a
// single YAML file. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	data registryFile
	path string
}

// registryFile is the on-disk shape of the registry.
type registryFile struct {
	Version string              `yaml:"version,omitempty"`
	Source  string              `yaml:"source,omitempty"`
	Synced  time.Time           `yaml:"synced,omitempty"`
	Updated time.Time           `yaml:"updated,omitempty"`
	Teams   map[string]Team     `yaml:"teams,omitempty"`
	Players map[string]Identity `yaml:"players,omitempty"`

	// Keywords maps role → characteristic transcript tokens. When empty,
	// [DefaultKeywords] applies.
	Keywords map[string][]string `yaml:"keywords,omitempty"`
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// New returns an empty registry that will persist to path on Save.
func New(path string) *Registry {
	return &Registry{
		path: path,
		data: registryFile{
			Teams:   map[string]Team{},
			Players: map[string]Identity{},
		},
	}
}

// TeamOf returns the group of identity, or "" when unknown.
func (r *Registry) TeamOf(identity string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Players[key(identity)].Team
}

// RoleOf returns the role tag of identity, or "" when unknown.
func (r *Registry) RoleOf(identity string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Players[key(identity)].Role
}

// Members returns the registered identity keys of group, in roster order.
// An unknown group yields nil, which callers treat as "no scope filter
// possible", not an error.
func (r *Registry) Members(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	team, ok := r.data.Teams[group]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(team.Players))
	for _, name := range team.Players {
		out = append(out, key(name))
	}
	return out
}

// Teams returns all registered group names, sorted.
func (r *Registry) Teams() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.data.Teams))
	for name := range r.data.Teams {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Get returns the full identity record.
func (r *Registry) Get(identity string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.data.Players[key(identity)]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q", ErrUnknownIdentity, identity)
	}
	return id, nil
}

// Keywords returns the role → token hint table. A registry without its own
// keyword block falls back to [DefaultKeywords].
func (r *Registry) Keywords() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.data.Keywords) > 0 {
		return r.data.Keywords
	}
	return DefaultKeywords
}

// RecordCommit updates the accuracy statistics of identity after a learner
// commit: max observed similarity, running average, level classification,
// provenance tag, and batch size. Unknown identities are created on the
// fly (first-time voiceprint creation for a speaker the official roster
// has not been synced for yet).
func (r *Registry) RecordCommit(identity string, batchMax, batchAvg float64, source string, batchSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(identity)
	id, ok := r.data.Players[k]
	if !ok {
		id = Identity{Name: identity}
	}

	acc := id.Accuracy
	if acc == nil {
		acc = &Accuracy{}
	}
	if batchMax > acc.Max {
		acc.Max = batchMax
	}
	if acc.Avg == 0 {
		acc.Avg = batchAvg
	} else {
		acc.Avg = (acc.Avg + batchAvg) / 2
	}
	acc.Level = ClassifyLevel(acc.Avg)
	acc.Source = source
	acc.Segments = batchSize
	id.Accuracy = acc

	r.data.Players[k] = id
	r.data.Updated = time.Now().UTC()
}
