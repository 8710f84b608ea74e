package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/activity"
	"github.com/your-org/facereg/internal/models"
	"github.com/your-org/facereg/internal/storage"
	"github.com/your-org/facereg/pkg/dto"
)

type IdentityHandler struct {
	db     *storage.PostgresStore
	log    *activity.Log
	images *storage.ImageStore
}

func NewIdentityHandler(db *storage.PostgresStore, log *activity.Log, images *storage.ImageStore) *IdentityHandler {
	return &IdentityHandler{db: db, log: log, images: images}
}

func (h *IdentityHandler) List(c *gin.Context) {
	identities, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for i := range identities {
		resp = append(resp, toIdentityResponse(&identities[i]))
	}

	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	identity, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	c.JSON(http.StatusOK, toIdentityResponse(identity))
}

// Events returns one identity's detection history, newest first.
func (h *IdentityHandler) Events(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.log.ForIdentity(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.EventListResponse{Events: toEventResponses(events), Total: len(events)})
}

// Image proxies the identity's registration image from object storage.
func (h *IdentityHandler) Image(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	data, err := h.images.Get(c.Request.Context(), storage.RegistrationKey(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func toIdentityResponse(identity *models.Identity) dto.IdentityResponse {
	return dto.IdentityResponse{
		ID:              identity.ID,
		DisplayCode:     identity.DisplayCode,
		FirstSeen:       identity.FirstSeen.Format(time.RFC3339),
		LastSeen:        identity.LastSeen.Format(time.RFC3339),
		TotalDetections: identity.TotalDetections,
		ConfidenceAvg:   identity.ConfidenceAvg,
		Attributes:      identity.Attributes,
		ImageURL:        "/v1/identities/" + identity.ID.String() + "/image",
	}
}

func toEventResponses(events []models.DetectionEvent) []dto.EventResponse {
	resp := make([]dto.EventResponse, 0, len(events))
	for _, ev := range events {
		r := dto.EventResponse{
			ID:            ev.ID,
			IdentityID:    ev.IdentityID,
			OccurredAt:    ev.OccurredAt.Format(time.RFC3339),
			Registration:  ev.Confidence == models.ConfidenceSentinel,
			DuplicateHits: ev.DuplicateHits,
			Attributes:    ev.Attributes,
			SnapshotURL:   "/v1/events/" + ev.ID.String() + "/snapshot",
		}
		if !r.Registration {
			confidence := ev.Confidence
			r.Confidence = &confidence
		}
		resp = append(resp, r)
	}
	return resp
}
