package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcant0n/voxid/internal/backup"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot and restore the voiceprint vault",
	}
	cmd.AddCommand(
		newBackupCreateCmd(a),
		newBackupListCmd(a),
		newBackupRestoreCmd(a),
		newBackupRestoreIdentityCmd(a),
	)
	return cmd
}

func newBackupCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a manual snapshot of the vault and registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bm, err := a.requireBackups()
			if err != nil {
				return err
			}
			snap, err := bm.Create(backup.ReasonManual)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%d voiceprints)\n", snap.Name, len(snap.Files))
			return nil
		},
	}
}

func newBackupListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bm, err := a.requireBackups()
			if err != nil {
				return err
			}
			snaps, err := bm.List()
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				return backup.ErrNoBackups
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCREATED\tREASON\tFILES")
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
					s.Name, s.Created.Format(time.RFC3339), s.Reason, len(s.Files))
			}
			return w.Flush()
		},
	}
}

func newBackupRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [name|latest]",
		Short: "Restore the vault and registry from a snapshot",
		Long: "Restore overwrites the current vault contents from the named snapshot\n" +
			"(default: latest). A pre_restore snapshot of the current state is taken\n" +
			"first, so a restore can itself be undone.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bm, err := a.requireBackups()
			if err != nil {
				return err
			}
			name := backup.Latest
			if len(args) == 1 {
				name = args[0]
			}
			snap, err := bm.Restore(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", snap.Name)
			return nil
		},
	}
}

func newBackupRestoreIdentityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-identity <identity> [name|latest]",
		Short: "Restore a single identity's voiceprint from a snapshot",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bm, err := a.requireBackups()
			if err != nil {
				return err
			}
			name := backup.Latest
			if len(args) == 2 {
				name = args[1]
			}
			snap, err := bm.RestoreIdentity(args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", args[0], snap.Name)
			return nil
		},
	}
}
