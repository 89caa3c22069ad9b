// Package mock provides a test double for the supply package interfaces.
//
// Use Source to feed controlled segments into the collection pipeline and
// inspect which requests were made:
//
//	src := &mock.Source{SegmentsByGroup: map[string][]speaker.Segment{
//	    "T1": {{Start: 0, End: 3, Embedding: emb}},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/marcant0n/voxid/pkg/speaker"
	"github.com/marcant0n/voxid/pkg/supply"
)

// Compile-time interface check.
var _ supply.Source = (*Source)(nil)

// Source is a scriptable in-memory implementation of supply.Source.
type Source struct {
	mu sync.Mutex

	// SegmentsByGroup maps a group name to the segments returned for it.
	// Groups not present yield an empty slice and no error.
	SegmentsByGroup map[string][]speaker.Segment

	// Err, if non-nil, is returned from every Segments call.
	Err error

	// Calls records every request received, in order.
	Calls []supply.Request
}

// Segments records the request and returns the scripted segments for the
// group, honouring req.MaxSegments.
func (s *Source) Segments(ctx context.Context, req supply.Request) ([]speaker.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	segs := s.SegmentsByGroup[req.Group]
	if req.MaxSegments > 0 && len(segs) > req.MaxSegments {
		segs = segs[:req.MaxSegments]
	}
	out := make([]speaker.Segment, len(segs))
	copy(out, segs)
	return out, nil
}
