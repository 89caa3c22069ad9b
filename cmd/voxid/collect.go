package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marcant0n/voxid/internal/collect"
	"github.com/marcant0n/voxid/pkg/speaker"
	"github.com/marcant0n/voxid/pkg/supply"
)

// fileSource supplies segments from a JSON file: either a flat array of
// segments (served for any group) or an object mapping group → segments.
type fileSource struct {
	byGroup map[string][]speaker.Segment
	flat    []speaker.Segment
}

var _ supply.Source = (*fileSource)(nil)

func newFileSource(path string) (*fileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("a --segments file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segments file: %w", err)
	}

	src := &fileSource{}
	if err := json.Unmarshal(data, &src.byGroup); err == nil {
		return src, nil
	}
	if err := json.Unmarshal(data, &src.flat); err != nil {
		return nil, fmt.Errorf("parse segments file %q: %w", path, err)
	}
	return src, nil
}

func (s *fileSource) Segments(ctx context.Context, req supply.Request) ([]speaker.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segs := s.flat
	if s.byGroup != nil {
		segs = s.byGroup[req.Group]
	}
	if req.MaxSegments > 0 && len(segs) > req.MaxSegments {
		segs = segs[:req.MaxSegments]
	}
	out := make([]speaker.Segment, len(segs))
	copy(out, segs)
	return out, nil
}

func newCollectCmd(a *app) *cobra.Command {
	var (
		segmentsPath string
		identity     string
		mode         string
		collectOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "collect <group> [group...]",
		Short: "Run a voiceprint collection pass for one or more groups",
		Long: "Collect pulls candidate segments from a JSON supply file, identifies\n" +
			"them against the current store, and folds qualifying batches into the\n" +
			"matched identities' voiceprints. With --collect-only, it reports what\n" +
			"would be committed without touching the store.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := collect.Mode(mode)
			if m != collect.ModeAuto && m != collect.ModeManual && m != collect.ModeBackground {
				return fmt.Errorf("invalid --mode %q; valid values: auto, manual, background", mode)
			}

			source, err := newFileSource(segmentsPath)
			if err != nil {
				return err
			}
			a.serveMetrics()

			pipeline := collect.New(a.collectConfig(), source, a.engine, a.learner)
			all, err := pipeline.CollectAll(cmd.Context(), a.session, args, collect.Options{
				Identity: identity,
				Mode:     m,
				DryRun:   collectOnly,
			})
			if err != nil {
				return err
			}

			groups := make([]string, 0, len(all))
			for g := range all {
				groups = append(groups, g)
			}
			sort.Strings(groups)

			out := cmd.OutOrStdout()
			for _, g := range groups {
				stats := all[g]
				fmt.Fprintf(out, "%s: scanned=%d skipped=%d matched=%d\n",
					g, stats.Scanned, stats.Skipped, stats.Matched)
				ids := make([]string, 0, len(stats.Committed))
				for id := range stats.Committed {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					verb := "committed"
					if collectOnly {
						verb = "would commit"
					}
					fmt.Fprintf(out, "  %s %d segments for %s\n", verb, stats.Committed[id], id)
				}
				for id, reason := range stats.Rejected {
					fmt.Fprintf(out, "  rejected %s: %s\n", id, reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&segmentsPath, "segments", "", "path to the JSON segment supply file")
	cmd.Flags().StringVarP(&identity, "identity", "i", "", "restrict collection to one identity")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(collect.ModeManual), "run mode: auto, manual, background")
	cmd.Flags().BoolVar(&collectOnly, "collect-only", false, "identify and bucket without committing")
	_ = cmd.MarkFlagRequired("segments")
	return cmd
}
