package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] when fields are left zero.
const (
	DefaultVaultDir     = "data/voiceprints"
	DefaultDim          = 192
	DefaultRegistryPath = "data/roster.yaml"
	DefaultBackupDir    = "data/backups"
	DefaultHistoryPath  = "data/backup_history.yaml"
	DefaultCooldownPath = "data/cooldown.yaml"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their standard defaults.
// Numeric tunables in the identify/quality/collect blocks keep their zero
// values here; the owning packages resolve those to their own defaults so
// the constants live in one place.
func ApplyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendFile
	}
	if cfg.Store.VaultDir == "" {
		cfg.Store.VaultDir = DefaultVaultDir
	}
	if cfg.Store.Dim == 0 {
		cfg.Store.Dim = DefaultDim
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = DefaultRegistryPath
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = DefaultBackupDir
	}
	if cfg.Backup.HistoryPath == "" {
		cfg.Backup.HistoryPath = DefaultHistoryPath
	}
	if cfg.Quality.CooldownPath == "" {
		cfg.Quality.CooldownPath = DefaultCooldownPath
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: file, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == BackendPostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	}
	if cfg.Store.Dim < 0 {
		errs = append(errs, fmt.Errorf("store.dim %d must be positive", cfg.Store.Dim))
	}

	if cfg.Backup.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("backup.max_backups %d must not be negative", cfg.Backup.MaxBackups))
	}

	if err := validateUnit("identify.threshold", cfg.Identify.Threshold); err != nil {
		errs = append(errs, err)
	}
	if err := validateUnit("identify.high_cut", cfg.Identify.HighCut); err != nil {
		errs = append(errs, err)
	}
	if err := validateUnit("identify.medium_cut", cfg.Identify.MediumCut); err != nil {
		errs = append(errs, err)
	}
	if cfg.Identify.HighCut != 0 && cfg.Identify.MediumCut != 0 &&
		cfg.Identify.HighCut < cfg.Identify.MediumCut {
		errs = append(errs, fmt.Errorf("identify.high_cut %.2f must not be below identify.medium_cut %.2f",
			cfg.Identify.HighCut, cfg.Identify.MediumCut))
	}

	if err := validateUnit("quality.recollect_threshold", cfg.Quality.RecollectThreshold); err != nil {
		errs = append(errs, err)
	}
	if cfg.Quality.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("quality.cooldown %v must not be negative", cfg.Quality.Cooldown))
	}

	if cfg.Collect.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("collect.min_duration %.2f must not be negative", cfg.Collect.MinDuration))
	}
	if cfg.Collect.MinBatch < 0 {
		errs = append(errs, fmt.Errorf("collect.min_batch %d must not be negative", cfg.Collect.MinBatch))
	}

	return errors.Join(errs...)
}

// validateUnit checks that a similarity-like tunable stays within [0, 1].
// Zero is always accepted; it means "use the package default".
func validateUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s %.2f is out of range [0, 1]", name, v)
	}
	return nil
}
