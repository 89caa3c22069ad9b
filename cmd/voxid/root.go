package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marcant0n/voxid/internal/backup"
	"github.com/marcant0n/voxid/internal/collect"
	"github.com/marcant0n/voxid/internal/config"
	"github.com/marcant0n/voxid/internal/identify"
	"github.com/marcant0n/voxid/internal/learn"
	"github.com/marcant0n/voxid/internal/observe"
	"github.com/marcant0n/voxid/internal/quality"
	"github.com/marcant0n/voxid/internal/roster"
	"github.com/marcant0n/voxid/internal/store"
	"github.com/marcant0n/voxid/internal/store/postgres"
)

// app bundles the wired components behind the CLI commands. Built once in
// the root PersistentPreRunE so every subcommand shares the same state.
type app struct {
	cfg      *config.Config
	store    store.Store
	registry *roster.Registry
	backups  *backup.Manager // nil for backends without file snapshots
	engine   *identify.Engine
	learner  *learn.Learner
	gate     *quality.CooldownLog
	session  *learn.Session

	shutdown func(context.Context) error
	closers  []func()
}

func (a *app) close() {
	for _, fn := range a.closers {
		fn()
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	a := &app{}

	root := &cobra.Command{
		Use:           "voxid",
		Short:         "Speaker voiceprint identification and learning",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context(), configPath)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newBackupCmd(a),
		newIdentifyCmd(a),
		newQualityCmd(a),
		newCollectCmd(a),
		newRosterCmd(a),
	)
	return root
}

// defaultConfigPath is the implicit config location; when it is absent
// voxid falls back to built-in defaults instead of failing, so the CLI
// works out of the box. An explicitly passed path must exist.
const defaultConfigPath = "config.yaml"

// init loads configuration and wires the component graph.
func (a *app) init(ctx context.Context, configPath string) error {
	var err error
	a.cfg, err = config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || configPath != defaultConfigPath {
			return err
		}
		a.cfg = config.Default()
	}

	slog.SetDefault(newLogger(a.cfg.Server.LogLevel))

	a.shutdown, err = observe.InitProvider(ctx)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	a.registry, err = roster.Load(a.cfg.Registry.Path)
	if err != nil {
		return err
	}

	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		pg, err := postgres.NewStore(ctx, a.cfg.Store.PostgresDSN, a.cfg.Store.Dim)
		if err != nil {
			return err
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
	default:
		fs, err := store.NewFileStore(a.cfg.Store.VaultDir, a.cfg.Store.Dim)
		if err != nil {
			return err
		}
		a.store = fs
		a.backups = backup.NewManager(fs, a.registry.Path(),
			a.cfg.Backup.Dir, a.cfg.Backup.HistoryPath, a.cfg.Backup.MaxBackups)
	}

	a.engine = identify.New(a.identifyConfig(), a.store, a.registry)
	a.learner = learn.New(a.store, a.registry, a.backups)
	a.gate = quality.NewCooldownLog(a.cfg.Quality.CooldownPath, time.Duration(a.cfg.Quality.Cooldown))
	a.session = learn.NewSession()
	return nil
}

func (a *app) identifyConfig() identify.Config {
	cfg := identify.DefaultConfig()
	if v := a.cfg.Identify.Threshold; v != 0 {
		cfg.Threshold = v
	}
	if v := a.cfg.Identify.HighCut; v != 0 {
		cfg.HighCut = v
	}
	if v := a.cfg.Identify.MediumCut; v != 0 {
		cfg.MediumCut = v
	}
	if v := a.cfg.Identify.Margin; v != 0 {
		cfg.Margin = v
	}
	if v := a.cfg.Identify.KeywordBonus; v != 0 {
		cfg.KeywordBonus = v
	}
	return cfg
}

func (a *app) collectConfig() collect.Config {
	cfg := collect.DefaultConfig()
	cfg.Threshold = a.identifyConfig().Threshold
	if v := a.cfg.Collect.MinDuration; v != 0 {
		cfg.MinDuration = v
	}
	if v := a.cfg.Collect.MinBatch; v != 0 {
		cfg.MinBatch = v
	}
	if v := a.cfg.Collect.TopN; v != 0 {
		cfg.TopN = v
	}
	if v := a.cfg.Collect.MaxSegments; v != 0 {
		cfg.MaxSegments = v
	}
	return cfg
}

// requireBackups gates commands that need file-level snapshots.
func (a *app) requireBackups() (*backup.Manager, error) {
	if a.backups == nil {
		return nil, fmt.Errorf("%w (backend %q)", backup.ErrUnsupportedBackend, a.cfg.Store.Backend)
	}
	return a.backups, nil
}

// serveMetrics exposes /metrics for the duration of a long-running command
// when server.metrics_addr is configured.
func (a *app) serveMetrics() {
	addr := a.cfg.Server.MetricsAddr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics listener failed", "addr", addr, "err", err)
		}
	}()
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	slog.Info("metrics listener started", "addr", addr)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
