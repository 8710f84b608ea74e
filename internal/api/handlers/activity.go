package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/activity"
	"github.com/your-org/facereg/internal/storage"
	"github.com/your-org/facereg/pkg/dto"
)

type ActivityHandler struct {
	log    *activity.Log
	images *storage.ImageStore
}

func NewActivityHandler(log *activity.Log, images *storage.ImageStore) *ActivityHandler {
	return &ActivityHandler{log: log, images: images}
}

// Recent returns the latest detection events across all identities.
func (h *ActivityHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.log.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.EventListResponse{Events: toEventResponses(events), Total: len(events)})
}

// Stats returns aggregate counters over the whole detection history.
func (h *ActivityHandler) Stats(c *gin.Context) {
	stats, err := h.log.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Snapshot proxies one event's source image from object storage.
func (h *ActivityHandler) Snapshot(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	data, err := h.images.Get(c.Request.Context(), storage.EventKey(eventID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
