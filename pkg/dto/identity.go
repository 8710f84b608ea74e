package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/models"
)

type IdentityResponse struct {
	ID              uuid.UUID         `json:"id"`
	DisplayCode     string            `json:"display_code"`
	FirstSeen       string            `json:"first_seen"`
	LastSeen        string            `json:"last_seen"`
	TotalDetections int               `json:"total_detections"`
	ConfidenceAvg   float64           `json:"confidence_avg"`
	Attributes      models.Attributes `json:"attributes"`
	ImageURL        string            `json:"image_url,omitempty"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}
