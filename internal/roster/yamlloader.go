package roster

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads the registry YAML file at path. A missing file yields an
// empty registry rather than an error: a brand-new installation has no
// identities yet and that is a normal startup state.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(path), nil
		}
		return nil, fmt.Errorf("roster: open registry %q: %w", path, err)
	}
	defer f.Close()

	r, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("roster: parse registry %q: %w", path, err)
	}
	r.path = path
	return r, nil
}

// LoadFromReader parses registry YAML from r. Useful in tests where
// registries are constructed from string literals.
func LoadFromReader(r io.Reader) (*Registry, error) {
	var data registryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&data); err != nil {
		if err == io.EOF {
			data = registryFile{}
		} else {
			return nil, fmt.Errorf("roster: decode registry yaml: %w", err)
		}
	}
	if data.Teams == nil {
		data.Teams = map[string]Team{}
	}
	if data.Players == nil {
		data.Players = map[string]Identity{}
	}
	return &Registry{data: data}, nil
}

// Save writes the registry back to its file atomically (temp file, then
// rename) so a crash mid-write never corrupts it.
func (r *Registry) Save() error {
	r.mu.RLock()
	data, err := yaml.Marshal(&r.data)
	path := r.path
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("roster: encode registry: %w", err)
	}
	if path == "" {
		return fmt.Errorf("roster: registry has no backing file")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("roster: create registry dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("roster: write registry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("roster: commit registry: %w", err)
	}
	return nil
}

// Path returns the registry's backing file. The backup manager captures
// this file alongside the voiceprint vault.
func (r *Registry) Path() string { return r.path }
