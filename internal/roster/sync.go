package roster

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Official is an externally maintained roster: group → role → display name.
// It is the source of truth for membership; [Registry.Sync] aligns the
// registry with it.
type Official struct {
	// Version identifies the roster revision (e.g. "2026-01-25").
	Version string `yaml:"version"`

	// Source names where the roster came from.
	Source string `yaml:"source,omitempty"`

	// Teams maps group name → role → member display name.
	Teams map[string]map[string]string `yaml:"teams"`
}

// rosterOrder lists roles in conventional display order; roles not listed
// sort after these, alphabetically.
var rosterOrder = []string{"top", "jungle", "mid", "adc", "support"}

func roleRank(role string) int {
	for i, r := range rosterOrder {
		if r == role {
			return i
		}
	}
	return len(rosterOrder)
}

// LoadOfficial reads an official roster YAML file.
func LoadOfficial(path string) (*Official, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: open official roster %q: %w", path, err)
	}
	defer f.Close()

	var o Official
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil && err != io.EOF {
		return nil, fmt.Errorf("roster: decode official roster %q: %w", path, err)
	}
	return &o, nil
}

// Sync aligns the registry with the official roster: rebuilds the team
// structures and moves every known identity to its official team and role.
// Identities absent from the official roster keep their current record
// untouched (they may be retired or inactive). Returns a human-readable
// list of changes applied.
func (r *Registry) Sync(official *Official) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changes []string

	r.data.Teams = make(map[string]Team, len(official.Teams))
	for group, byRole := range official.Teams {
		roles := make([]string, 0, len(byRole))
		for role := range byRole {
			roles = append(roles, role)
		}
		sort.Slice(roles, func(i, j int) bool {
			ri, rj := roleRank(roles[i]), roleRank(roles[j])
			if ri != rj {
				return ri < rj
			}
			return roles[i] < roles[j]
		})

		team := Team{Roles: make(map[string]string, len(byRole))}
		for _, role := range roles {
			name := byRole[role]
			team.Players = append(team.Players, name)
			team.Roles[name] = role
		}
		r.data.Teams[group] = team
	}

	for group, byRole := range official.Teams {
		for role, name := range byRole {
			k := key(name)
			id, ok := r.data.Players[k]
			if !ok {
				id = Identity{Name: name}
			}
			if id.Team != group {
				if id.Team != "" {
					changes = append(changes, fmt.Sprintf("%s: %s -> %s", name, id.Team, group))
				}
				id.Team = group
			}
			id.Role = role
			r.data.Players[k] = id
		}
	}

	r.data.Version = official.Version
	r.data.Source = official.Source
	r.data.Synced = time.Now().UTC()

	sort.Strings(changes)
	return changes
}

// Issue is one discrepancy found by [Registry.Validate].
type Issue struct {
	// Kind is "team_mismatch" or "unknown_identity".
	Kind     string
	Identity string
	Detail   string
}

// Validate compares the registry against an official roster and reports
// identities assigned to the wrong team or absent from the roster
// entirely. It mutates nothing.
func (r *Registry) Validate(official *Official) []Issue {
	officialTeam := make(map[string]string)
	for group, byRole := range official.Teams {
		for _, name := range byRole {
			officialTeam[key(name)] = group
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var issues []Issue
	keys := make([]string, 0, len(r.data.Players))
	for k := range r.data.Players {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		id := r.data.Players[k]
		want, known := officialTeam[k]
		switch {
		case known && id.Team != want:
			issues = append(issues, Issue{
				Kind:     "team_mismatch",
				Identity: id.Name,
				Detail:   fmt.Sprintf("registered as %s, official roster says %s", id.Team, want),
			})
		case !known:
			issues = append(issues, Issue{
				Kind:     "unknown_identity",
				Identity: id.Name,
				Detail:   fmt.Sprintf("not on the official roster (registered team %q)", id.Team),
			})
		}
	}
	return issues
}

// TeamQuality classifies each member of a group by voiceprint quality.
type TeamQuality struct {
	Group string

	// High, Medium, Low hold members bucketed by their accuracy level.
	High   []string
	Medium []string
	Low    []string

	// New holds members with a voiceprint but no accuracy statistics yet.
	New []string

	// Missing holds members with no voiceprint at all.
	Missing []string
}

// NeedsImprovement returns the members whose voiceprints are low quality,
// brand new, or missing — the candidates a re-collection run should focus on.
func (q TeamQuality) NeedsImprovement() []string {
	out := make([]string, 0, len(q.Low)+len(q.New)+len(q.Missing))
	out = append(out, q.Low...)
	out = append(out, q.New...)
	out = append(out, q.Missing...)
	return out
}

// Quality buckets the members of group by stored-voiceprint quality.
// voiceprints is the store's current working set (identity → vector);
// only its keys are consulted.
func (r *Registry) Quality(group string, voiceprints map[string][]float32) TeamQuality {
	q := TeamQuality{Group: group}

	for _, member := range r.Members(group) {
		if _, ok := voiceprints[member]; !ok {
			q.Missing = append(q.Missing, member)
			continue
		}
		id, err := r.Get(member)
		if err != nil || id.Accuracy == nil {
			q.New = append(q.New, member)
			continue
		}
		switch id.Accuracy.Level {
		case LevelHigh:
			q.High = append(q.High, member)
		case LevelMedium:
			q.Medium = append(q.Medium, member)
		default:
			q.Low = append(q.Low, member)
		}
	}
	return q
}
