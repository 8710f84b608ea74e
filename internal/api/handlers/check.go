package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facereg/internal/analyzer"
	"github.com/your-org/facereg/internal/engine"
	"github.com/your-org/facereg/internal/fingerprint"
	"github.com/your-org/facereg/internal/observability"
	"github.com/your-org/facereg/internal/storage"
	"github.com/your-org/facereg/pkg/dto"
)

// maxUploadBytes bounds the accepted image size.
const maxUploadBytes = 15 << 20

// Analyzer is the external face analysis call, narrowed for testing.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (*analyzer.Result, error)
}

// ImageSink retains source images. Nil-able; retention is best-effort.
type ImageSink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type CheckHandler struct {
	engine *engine.Engine
	faces  Analyzer
	images ImageSink
}

func NewCheckHandler(eng *engine.Engine, faces Analyzer, images ImageSink) *CheckHandler {
	return &CheckHandler{engine: eng, faces: faces, images: images}
}

// Check accepts one image and resolves it to an identity decision.
func (h *CheckHandler) Check(c *gin.Context) {
	threshold, err := parseThreshold(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	image, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fp := fingerprint.Hash(image)

	start := time.Now()
	verdict, err := h.faces.Analyze(c.Request.Context(), image)
	observability.StageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	if err != nil {
		// The engine never sees failed analyses, so count the outcome here.
		observability.ChecksTotal.WithLabelValues(string(engine.OutcomeAnalysisFailed)).Inc()
		slog.Error("face analysis failed", "error", err, "fingerprint", fp)
		c.JSON(http.StatusOK, dto.CheckResponse{
			Status: string(engine.OutcomeAnalysisFailed),
			Error:  err.Error(),
		})
		return
	}

	res, err := h.engine.Check(c.Request.Context(), engine.CheckInput{
		FacesFound:  verdict.FacesFound,
		Embedding:   verdict.Embedding,
		Attributes:  verdict.Attributes(),
		Fingerprint: fp,
		Threshold:   threshold,
	})
	if err != nil {
		if errors.Is(err, engine.ErrInvalidThreshold) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("identity check failed", "error", err, "fingerprint", fp)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity check failed"})
		return
	}

	h.retainImage(res, image)

	c.JSON(http.StatusOK, toCheckResponse(res, verdict))
}

// retainImage uploads the source image for registered and recognized
// outcomes. Failures are logged and never affect the decision.
func (h *CheckHandler) retainImage(res *engine.Result, image []byte) {
	if h.images == nil || res.Event == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if res.Outcome == engine.OutcomeRegistered {
		if err := h.images.Put(ctx, storage.RegistrationKey(res.Identity.ID), image, "image/jpeg"); err != nil {
			slog.Warn("retain registration image", "error", err, "identity", res.Identity.ID)
		}
	}
	if err := h.images.Put(ctx, storage.EventKey(res.Event.ID), image, "image/jpeg"); err != nil {
		slog.Warn("retain event snapshot", "error", err, "event", res.Event.ID)
	}
}

func toCheckResponse(res *engine.Result, verdict *analyzer.Result) dto.CheckResponse {
	resp := dto.CheckResponse{Status: string(res.Outcome)}

	switch res.Outcome {
	case engine.OutcomeExactDuplicate:
		resp.SeenBefore = true
		id := res.OriginalEventID
		resp.OriginalEventID = &id

	case engine.OutcomeRecognized:
		resp.SeenBefore = true
		confidence := res.Confidence
		resp.Confidence = &confidence
		fillIdentity(&resp, res)
		attrs := verdict.Attributes()
		resp.Attributes = &attrs

	case engine.OutcomeRegistered:
		fillIdentity(&resp, res)
		attrs := verdict.Attributes()
		resp.Attributes = &attrs
	}

	return resp
}

func fillIdentity(resp *dto.CheckResponse, res *engine.Result) {
	id := res.Identity.ID
	resp.IdentityID = &id
	resp.DisplayCode = res.Identity.DisplayCode
	resp.TotalDetections = res.Identity.TotalDetections
	resp.FirstSeen = res.Identity.FirstSeen.Format(time.RFC3339)
	resp.LastSeen = res.Identity.LastSeen.Format(time.RFC3339)
}

func parseThreshold(c *gin.Context) (float64, error) {
	raw := c.Query("threshold")
	if raw == "" {
		raw = c.PostForm("threshold")
	}
	if raw == "" {
		return 0, nil // engine default
	}
	threshold, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("threshold must be a number")
	}
	if threshold <= 0 || threshold > 1 {
		return 0, errors.New("threshold must be in (0, 1]")
	}
	return threshold, nil
}

func readUpload(c *gin.Context) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, errors.New("image file required in 'file' form field")
	}
	if fileHeader.Size > maxUploadBytes {
		return nil, errors.New("image exceeds size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, errors.New("could not open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, errors.New("could not read uploaded file")
	}
	if len(data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}
	return data, nil
}
