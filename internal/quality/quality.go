// Package quality aggregates identification outcomes over a processing
// session, decides whether automatic re-collection should fire, and
// enforces a per-group cooldown so repeated poor sessions cannot thrash
// the collection pipeline.
package quality

import (
	"github.com/marcant0n/voxid/pkg/speaker"
)

// Level ratio cuts for a session report.
const (
	// highRatioCut is the share of high-confidence segments needed for a
	// high session level.
	highRatioCut = 0.6

	// mediumRatioCut is the share needed for a medium session level.
	mediumRatioCut = 0.3
)

// DefaultRecollectThreshold is the share of low-confidence plus
// unidentified segments at which re-collection is advised.
const DefaultRecollectThreshold = 0.5

// Assess aggregates a session's labeled segments into a quality report.
// recollectThreshold ≤ 0 selects [DefaultRecollectThreshold]. An empty
// session reports level unknown and never advises re-collection.
func Assess(segments []speaker.LabeledSegment, recollectThreshold float64) speaker.QualityReport {
	if recollectThreshold <= 0 {
		recollectThreshold = DefaultRecollectThreshold
	}

	rep := speaker.QualityReport{Total: len(segments)}
	if rep.Total == 0 {
		rep.Level = speaker.QualityUnknown
		return rep
	}

	for _, s := range segments {
		if !s.Identified() {
			rep.Unidentified++
			continue
		}
		switch s.Confidence {
		case speaker.ConfidenceHigh:
			rep.High++
		case speaker.ConfidenceMedium:
			rep.Medium++
		case speaker.ConfidenceUncertain:
			rep.Uncertain++
		default:
			rep.Low++
		}
	}

	total := float64(rep.Total)
	highRatio := float64(rep.High) / total
	lowRatio := float64(rep.Low+rep.Unidentified) / total

	switch {
	case highRatio >= highRatioCut:
		rep.Level = speaker.QualityHigh
	case highRatio >= mediumRatioCut:
		rep.Level = speaker.QualityMedium
	default:
		rep.Level = speaker.QualityLow
	}
	rep.ShouldRecollect = lowRatio >= recollectThreshold

	return rep
}
