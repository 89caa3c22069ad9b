package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcant0n/voxid/internal/collect"
	"github.com/marcant0n/voxid/internal/quality"
	"github.com/marcant0n/voxid/pkg/speaker"
)

func newQualityCmd(a *app) *cobra.Command {
	var (
		sessionPath  string
		group        string
		segmentsPath string
		trigger      bool
	)

	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Assess a session's identification quality",
		Long: "Quality reads a JSON array of labeled segments (the output of a\n" +
			"processing session) and prints the aggregated quality report.\n" +
			"With --trigger, a poor session launches a re-collection run for the\n" +
			"group through the cooldown gate, pulling segments from --segments.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(sessionPath)
			if err != nil {
				return fmt.Errorf("read session file: %w", err)
			}
			var labeled []speaker.LabeledSegment
			if err := json.Unmarshal(data, &labeled); err != nil {
				return fmt.Errorf("parse session file %q: %w", sessionPath, err)
			}

			var rep speaker.QualityReport
			if trigger {
				if group == "" {
					return fmt.Errorf("--trigger requires --group")
				}
				source, err := newFileSource(segmentsPath)
				if err != nil {
					return err
				}
				pipeline := collect.New(a.collectConfig(), source, a.engine, a.learner)

				// Synchronous runner: the CLI process must outlive the run.
				mon := quality.NewMonitor(a.cfg.Quality.RecollectThreshold, a.gate, quality.SyncRunner{})
				var fired bool
				rep, fired = mon.Review(cmd.Context(), group, labeled, pipeline.Recollect(a.session))
				if fired {
					fmt.Fprintln(cmd.ErrOrStderr(), "re-collection run completed")
				}
			} else {
				rep = quality.Assess(labeled, a.cfg.Quality.RecollectThreshold)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}

	cmd.Flags().StringVarP(&sessionPath, "session", "s", "", "path to the JSON labeled-segment file")
	cmd.Flags().StringVarP(&group, "group", "g", "", "group the session belongs to")
	cmd.Flags().StringVar(&segmentsPath, "segments", "", "JSON segment file used as supply when a re-collection fires")
	cmd.Flags().BoolVar(&trigger, "trigger", false, "launch re-collection when the report advises it")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
