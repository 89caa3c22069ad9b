package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcant0n/voxid/internal/roster"
)

func newRosterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Inspect and maintain the identity registry",
	}
	cmd.AddCommand(
		newRosterShowCmd(a),
		newRosterQualityCmd(a),
		newRosterSyncCmd(a),
		newRosterValidateCmd(a),
	)
	return cmd
}

// loadOfficial resolves the official roster path from the flag or config.
func (a *app) loadOfficial(flagPath string) (*roster.Official, error) {
	path := flagPath
	if path == "" {
		path = a.cfg.Registry.OfficialPath
	}
	if path == "" {
		return nil, fmt.Errorf("an official roster is required; pass --official or set registry.official_path")
	}
	return roster.LoadOfficial(path)
}

func newRosterShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [group]",
		Short: "Show registered teams and members",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := a.registry.Teams()
			if len(args) == 1 {
				groups = []string{args[0]}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP\tIDENTITY\tROLE\tACCURACY")
			for _, g := range groups {
				for _, member := range a.registry.Members(g) {
					id, err := a.registry.Get(member)
					if err != nil {
						return err
					}
					acc := "-"
					if id.Accuracy != nil {
						acc = fmt.Sprintf("%s (avg %.2f, max %.2f)",
							id.Accuracy.Level, id.Accuracy.Avg, id.Accuracy.Max)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g, id.Name, id.Role, acc)
				}
			}
			return w.Flush()
		},
	}
}

func newRosterQualityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quality <group>",
		Short: "Bucket a group's members by voiceprint quality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			voiceprints, err := a.store.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			q := a.registry.Quality(args[0], voiceprints)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s voiceprint quality\n", q.Group)
			fmt.Fprintf(out, "  high:    %v\n", q.High)
			fmt.Fprintf(out, "  medium:  %v\n", q.Medium)
			fmt.Fprintf(out, "  low:     %v\n", q.Low)
			fmt.Fprintf(out, "  new:     %v\n", q.New)
			fmt.Fprintf(out, "  missing: %v\n", q.Missing)
			if needs := q.NeedsImprovement(); len(needs) > 0 {
				fmt.Fprintf(out, "collection recommended for: %v\n", needs)
			}
			return nil
		},
	}
}

func newRosterSyncCmd(a *app) *cobra.Command {
	var officialPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Align the registry with the official roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			official, err := a.loadOfficial(officialPath)
			if err != nil {
				return err
			}
			changes := a.registry.Sync(official)
			if err := a.registry.Save(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "synced to roster version %s\n", official.Version)
			for _, c := range changes {
				fmt.Fprintf(out, "  moved %s\n", c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&officialPath, "official", "", "path to the official roster YAML")
	return cmd
}

func newRosterValidateCmd(a *app) *cobra.Command {
	var officialPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report registry entries that disagree with the official roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			official, err := a.loadOfficial(officialPath)
			if err != nil {
				return err
			}
			issues := a.registry.Validate(official)
			if len(issues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "registry matches the official roster")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tIDENTITY\tDETAIL")
			for _, issue := range issues {
				fmt.Fprintf(w, "%s\t%s\t%s\n", issue.Kind, issue.Identity, issue.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&officialPath, "official", "", "path to the official roster YAML")
	return cmd
}
