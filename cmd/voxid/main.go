// Command voxid manages speaker voiceprints: identification, incremental
// learning, session quality review, collection runs, and vault backups.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/marcant0n/voxid/internal/backup"
	"github.com/marcant0n/voxid/internal/roster"
	"github.com/marcant0n/voxid/internal/store"
)

// Exit codes of the voxid command surface.
const (
	exitSuccess      = 0
	exitIOFailure    = 1
	exitNotFound     = 2
	exitEmptyHistory = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "voxid: %v\n", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps error classes to the documented exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, backup.ErrNoBackups):
		return exitEmptyHistory
	case errors.Is(err, backup.ErrSnapshotNotFound),
		errors.Is(err, backup.ErrIdentityNotInSnapshot),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, roster.ErrUnknownIdentity):
		return exitNotFound
	default:
		return exitIOFailure
	}
}
