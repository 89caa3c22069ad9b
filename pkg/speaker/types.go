// Package speaker defines the shared data types exchanged between the
// voxid core and its external collaborators: time-stamped audio segments,
// identification results, and session quality reports.
//
// The embedding vectors carried here are produced by an external speaker
// encoder (e.g. a 192-dimensional ECAPA model); voxid never computes
// embeddings itself, it only consumes them.
package speaker

// Confidence is the qualitative bucket assigned to an identification
// result. It is derived from the raw cosine similarity and, for near-ties,
// from the tie-break outcome.
type Confidence string

const (
	// ConfidenceHigh means the best score cleared the high cut (default > 0.5).
	ConfidenceHigh Confidence = "high"

	// ConfidenceMedium means the best score cleared the medium cut (default > 0.4).
	ConfidenceMedium Confidence = "medium"

	// ConfidenceLow means the best score fell below the medium cut, or no
	// candidate cleared the matching threshold at all.
	ConfidenceLow Confidence = "low"

	// ConfidenceUncertain means the two best candidates were nearly tied
	// and the result was decided by role-keyword disambiguation (or left
	// in the original order when no keyword fired).
	ConfidenceUncertain Confidence = "uncertain"
)

// IsValid reports whether c is a recognised confidence class.
func (c Confidence) IsValid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceUncertain:
		return true
	}
	return false
}

// Segment is one externally supplied slice of speech from a video source.
type Segment struct {
	// Start is the segment start offset in seconds.
	Start float64 `json:"start"`

	// End is the segment end offset in seconds.
	End float64 `json:"end"`

	// Text is the transcript of the segment, when a transcript exists.
	Text string `json:"text,omitempty"`

	// Embedding is the fixed-length speaker embedding for the segment.
	// It is nil when the segment was too short for the encoder.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// LabeledSegment is a Segment after identification.
type LabeledSegment struct {
	Segment

	// Identity is the best-matching identity key, or "" when no candidate
	// cleared the matching threshold.
	Identity string `json:"identity,omitempty"`

	// Score is the raw cosine similarity of the best candidate before any
	// disambiguation bonus. It is reported even for unidentified segments.
	Score float64 `json:"score"`

	// Confidence classifies the result.
	Confidence Confidence `json:"confidence"`
}

// Identified reports whether the segment was matched to a known identity.
func (l LabeledSegment) Identified() bool { return l.Identity != "" }

// QualityLevel summarises a whole processing session.
type QualityLevel string

const (
	QualityHigh    QualityLevel = "high"
	QualityMedium  QualityLevel = "medium"
	QualityLow     QualityLevel = "low"
	QualityUnknown QualityLevel = "unknown"
)

// QualityReport aggregates identification outcomes over one session.
type QualityReport struct {
	// Level is high when ≥ 60% of segments were high confidence, medium
	// when ≥ 30%, low otherwise, and unknown for an empty session.
	Level QualityLevel `json:"level"`

	High         int `json:"high"`
	Medium       int `json:"medium"`
	Low          int `json:"low"`
	Uncertain    int `json:"uncertain"`
	Unidentified int `json:"unidentified"`
	Total        int `json:"total"`

	// ShouldRecollect is set when the share of low-confidence plus
	// unidentified segments reached the recollect threshold. It is advice;
	// the cooldown gate decides whether a trigger actually fires.
	ShouldRecollect bool `json:"should_recollect"`
}
