package models

import (
	"time"

	"github.com/google/uuid"
)

// ConfidenceSentinel marks the registration event of an identity. There is
// nothing to compare the first embedding against, so the event carries this
// value instead of a similarity score and it is excluded from the identity's
// running confidence average.
const ConfidenceSentinel = -1.0

// Identity is one auto-registered person. The representative embedding is
// fixed at registration and never overwritten by later matches.
type Identity struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	DisplayCode     string     `json:"display_code" db:"display_code"`
	Embedding       []float32  `json:"-" db:"embedding"`
	FirstSeen       time.Time  `json:"first_seen" db:"first_seen"`
	LastSeen        time.Time  `json:"last_seen" db:"last_seen"`
	TotalDetections int        `json:"total_detections" db:"total_detections"`
	ConfidenceAvg   float64    `json:"confidence_avg" db:"confidence_avg"`
	Attributes      Attributes `json:"attributes" db:"attributes"`
}

// DetectionEvent is one processed, non-duplicate face submission attributed
// to an identity. DuplicateHits counts later byte-identical re-submissions of
// the same source image; they produce no new event.
type DetectionEvent struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	IdentityID    uuid.UUID  `json:"identity_id" db:"identity_id"`
	OccurredAt    time.Time  `json:"occurred_at" db:"occurred_at"`
	Confidence    float64    `json:"confidence" db:"confidence"`
	Fingerprint   string     `json:"fingerprint" db:"fingerprint"`
	DuplicateHits int        `json:"duplicate_hits" db:"duplicate_hits"`
	Attributes    Attributes `json:"attributes" db:"attributes"`
}

// AttributeScores is one demographic attribute as reported by the external
// analyzer: the dominant label plus the full score distribution.
type AttributeScores struct {
	Dominant string             `json:"dominant"`
	Scores   map[string]float64 `json:"scores,omitempty"`
}

// Attributes is the opaque demographic payload attached to detection events.
// The core stores and returns it verbatim, it never interprets the values.
type Attributes struct {
	Age       int             `json:"age"`
	Gender    AttributeScores `json:"gender"`
	Emotion   AttributeScores `json:"emotion"`
	Ethnicity AttributeScores `json:"ethnicity"`
}

// ActivityStats are the aggregate counters served by GET /v1/stats.
type ActivityStats struct {
	TotalIdentities   int       `json:"total_identities"`
	TotalDetections   int       `json:"total_detections"`
	ExactDuplicates   int       `json:"exact_duplicates"`
	DetectionsLast24h int       `json:"detections_last_24h"`
	MostSeen          *MostSeen `json:"most_seen,omitempty"`
}

// MostSeen identifies the identity with the highest detection count.
type MostSeen struct {
	DisplayCode     string `json:"display_code"`
	TotalDetections int    `json:"total_detections"`
}
