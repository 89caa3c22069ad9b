// Package supply defines the Source interface through which the voxid core
// receives candidate speech segments from its external collaborators.
//
// A Source wraps whatever machinery actually produces segments — video
// download, voice-activity detection, transcription, and the external
// speaker encoder — and hands the core fully prepared [speaker.Segment]
// values, each carrying its transcript (if any) and its pre-computed
// embedding (if the clip was long enough to embed). The core never touches
// raw audio.
//
// Implementations must be safe for concurrent use: the collection pipeline
// may pull segments for several groups at once.
package supply

import (
	"context"

	"github.com/marcant0n/voxid/pkg/speaker"
)

// Request scopes one pull of candidate segments.
type Request struct {
	// Group names the team whose material should be searched (e.g. "T1").
	Group string

	// Identity optionally restricts collection to one member of the group.
	// Sources that cannot pre-filter by identity may ignore this; the
	// pipeline re-checks every segment against the store regardless.
	Identity string

	// MaxSegments caps how many segments the source should yield.
	// Zero means the source's own default.
	MaxSegments int
}

// Source supplies candidate segments for a collection run.
type Source interface {
	// Segments returns candidate segments for the request, in source order.
	// Segments without an embedding are permitted; the pipeline skips them.
	//
	// A source that has nothing for the group returns an empty slice and
	// no error — "no material found" is a normal outcome, not a failure.
	Segments(ctx context.Context, req Request) ([]speaker.Segment, error)
}
