// Package config provides the configuration schema and loader for voxid.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps [time.Duration] so YAML configs can use strings like
// "30m" or "1h".
type Duration time.Duration

var _ yaml.Unmarshaler = (*Duration)(nil)

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend selects the voiceprint store implementation.
type Backend string

const (
	// BackendFile stores one vector file per identity in a vault directory.
	BackendFile Backend = "file"

	// BackendPostgres stores voiceprints in PostgreSQL with pgvector.
	BackendPostgres Backend = "postgres"
)

// IsValid reports whether b is a recognised store backend.
func (b Backend) IsValid() bool {
	return b == BackendFile || b == BackendPostgres
}

// Config is the root configuration structure for voxid. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Registry RegistryConfig `yaml:"registry"`
	Backup   BackupConfig   `yaml:"backup"`
	Identify IdentifyConfig `yaml:"identify"`
	Quality  QualityConfig  `yaml:"quality"`
	Collect  CollectConfig  `yaml:"collect"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the /metrics endpoint listens on for
	// long-running commands (e.g. ":9109"). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// StoreConfig selects and configures the voiceprint store backend.
type StoreConfig struct {
	// Backend picks the store implementation. Default: file.
	Backend Backend `yaml:"backend"`

	// VaultDir is the voiceprint directory for the file backend.
	VaultDir string `yaml:"vault_dir"`

	// Dim is the embedding dimension enforced by the store (e.g. 192 for
	// an ECAPA encoder).
	Dim int `yaml:"dim"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RegistryConfig locates the identity registry.
type RegistryConfig struct {
	// Path is the registry YAML file.
	Path string `yaml:"path"`

	// OfficialPath optionally points at an official roster file used by
	// the roster sync and validate commands.
	OfficialPath string `yaml:"official_path"`
}

// BackupConfig configures the snapshot manager.
type BackupConfig struct {
	// Dir is the directory snapshots are written under.
	Dir string `yaml:"dir"`

	// HistoryPath is the backup history index file.
	HistoryPath string `yaml:"history_path"`

	// MaxBackups bounds retention; oldest snapshots are evicted first.
	// Zero selects the default of 10.
	MaxBackups int `yaml:"max_backups"`
}

// IdentifyConfig holds the identification tunables. Zero values select the
// standard defaults (threshold 0.4, cuts 0.5/0.4, margin 0.08, bonus 0.05).
type IdentifyConfig struct {
	Threshold    float64 `yaml:"threshold"`
	HighCut      float64 `yaml:"high_cut"`
	MediumCut    float64 `yaml:"medium_cut"`
	Margin       float64 `yaml:"margin"`
	KeywordBonus float64 `yaml:"keyword_bonus"`
}

// QualityConfig configures the session quality monitor.
type QualityConfig struct {
	// RecollectThreshold is the low+unidentified share that advises
	// re-collection. Zero selects the default of 0.5.
	RecollectThreshold float64 `yaml:"recollect_threshold"`

	// Cooldown is the minimum interval between automatic re-collection
	// triggers per group. Zero selects one hour.
	Cooldown Duration `yaml:"cooldown"`

	// CooldownPath is the persisted cooldown log file.
	CooldownPath string `yaml:"cooldown_path"`
}

// CollectConfig holds the collection pipeline tunables. Zero values select
// the standard defaults (min duration 1.5s, batch 3, top 10, scan cap 30).
type CollectConfig struct {
	MinDuration float64 `yaml:"min_duration"`
	MinBatch    int     `yaml:"min_batch"`
	TopN        int     `yaml:"top_n"`
	MaxSegments int     `yaml:"max_segments"`
}
