package quality

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCooldown is the minimum interval between automatic re-collection
// triggers for one group.
const DefaultCooldown = time.Hour

// TriggerEvent records one re-collection launch in the cooldown log's
// history, for operator inspection.
type TriggerEvent struct {
	Group string    `yaml:"group"`
	At    time.Time `yaml:"at"`

	// Note summarises the session that caused the trigger.
	Note string `yaml:"note,omitempty"`
}

// cooldownFile is the on-disk shape of the cooldown log.
type cooldownFile struct {
	LastTriggered map[string]time.Time `yaml:"last_triggered"`
	History       []TriggerEvent       `yaml:"history,omitempty"`
}

// maxHistoryEvents bounds the trigger history kept in the log file.
const maxHistoryEvents = 50

// CooldownLog is a persisted per-group cooldown gate. The gate is
// check-and-set: a successful acquire writes the trigger timestamp before
// the caller launches any work, so overlapping sessions cannot both pass.
//
// A failed re-collection run does not re-open the gate; the group waits
// out its full cooldown either way. That keeps a persistently failing
// supply from being hammered once per session.
type CooldownLog struct {
	mu       sync.Mutex
	path     string
	cooldown time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewCooldownLog creates a cooldown gate persisted at path. cooldown ≤ 0
// selects [DefaultCooldown].
func NewCooldownLog(path string, cooldown time.Duration) *CooldownLog {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CooldownLog{path: path, cooldown: cooldown, now: time.Now}
}

// CanTrigger reports whether the gate for group is currently open, without
// acquiring it.
func (c *CooldownLog) CanTrigger(group string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.load()
	if err != nil {
		return false, err
	}
	last, ok := f.LastTriggered[group]
	return !ok || c.now().Sub(last) >= c.cooldown, nil
}

// TryAcquire atomically checks the gate for group and, when open, records
// the trigger timestamp and a history event carrying note. Returns true
// only when this caller won the gate.
func (c *CooldownLog) TryAcquire(group, note string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.load()
	if err != nil {
		return false, err
	}

	now := c.now()
	if last, ok := f.LastTriggered[group]; ok && now.Sub(last) < c.cooldown {
		return false, nil
	}

	if f.LastTriggered == nil {
		f.LastTriggered = make(map[string]time.Time)
	}
	f.LastTriggered[group] = now
	f.History = append(f.History, TriggerEvent{Group: group, At: now, Note: note})
	if len(f.History) > maxHistoryEvents {
		f.History = f.History[len(f.History)-maxHistoryEvents:]
	}

	if err := c.save(f); err != nil {
		return false, err
	}
	return true, nil
}

// History returns the recorded trigger events, oldest first.
func (c *CooldownLog) History() ([]TriggerEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.load()
	if err != nil {
		return nil, err
	}
	return f.History, nil
}

func (c *CooldownLog) load() (*cooldownFile, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cooldownFile{}, nil
		}
		return nil, fmt.Errorf("quality: read cooldown log %q: %w", c.path, err)
	}

	var f cooldownFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		// A corrupt log means the gate opens again; that only risks one
		// extra re-collection run, never data loss.
		slog.Warn("cooldown log is corrupt, treating all gates as open",
			"path", c.path, "err", err)
		return &cooldownFile{}, nil
	}
	return &f, nil
}

// save writes the log atomically (temp file, then rename).
func (c *CooldownLog) save(f *cooldownFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("quality: encode cooldown log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("quality: create cooldown log dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("quality: write cooldown log: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("quality: commit cooldown log: %w", err)
	}
	return nil
}
