package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/models"
)

// CheckResponse is the result of POST /v1/check. Status carries the outcome
// name; the identity fields are present for the recognized and registered
// outcomes, OriginalEventID for exact duplicates.
type CheckResponse struct {
	Status          string             `json:"status"`
	SeenBefore      bool               `json:"seen_before"`
	IdentityID      *uuid.UUID         `json:"identity_id,omitempty"`
	DisplayCode     string             `json:"display_code,omitempty"`
	Confidence      *float64           `json:"confidence,omitempty"`
	TotalDetections int                `json:"total_detections,omitempty"`
	FirstSeen       string             `json:"first_seen,omitempty"`
	LastSeen        string             `json:"last_seen,omitempty"`
	OriginalEventID *uuid.UUID         `json:"original_event_id,omitempty"`
	Attributes      *models.Attributes `json:"attributes,omitempty"`
	Error           string             `json:"error,omitempty"`
}
