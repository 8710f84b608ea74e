package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/models"
)

// EventResponse is one detection event. Registration marks the event that
// created its identity; such events have no similarity confidence.
type EventResponse struct {
	ID            uuid.UUID         `json:"id"`
	IdentityID    uuid.UUID         `json:"identity_id"`
	DisplayCode   string            `json:"display_code,omitempty"`
	OccurredAt    string            `json:"occurred_at"`
	Confidence    *float64          `json:"confidence,omitempty"`
	Registration  bool              `json:"registration"`
	DuplicateHits int               `json:"duplicate_hits"`
	Attributes    models.Attributes `json:"attributes"`
	SnapshotURL   string            `json:"snapshot_url,omitempty"`
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

// WSEvent is a WebSocket message delivering one resolution outcome live.
// Type is the outcome name, used for client-side subject filtering.
type WSEvent struct {
	Type            string    `json:"type"`
	IdentityID      uuid.UUID `json:"identity_id"`
	DisplayCode     string    `json:"display_code"`
	Confidence      float64   `json:"confidence"`
	TotalDetections int       `json:"total_detections"`
	EventID         uuid.UUID `json:"event_id"`
	OccurredAt      string    `json:"occurred_at"`
}
