package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/fingerprint"
	"github.com/your-org/facereg/internal/gallery"
	"github.com/your-org/facereg/internal/models"
	"github.com/your-org/facereg/internal/observability"
)

// Outcome is the terminal state of one check request.
type Outcome string

const (
	OutcomeNoFace         Outcome = "no_face"
	OutcomeMultipleFaces  Outcome = "multiple_faces"
	OutcomeExactDuplicate Outcome = "exact_duplicate"
	OutcomeRecognized     Outcome = "person_recognized"
	OutcomeRegistered     Outcome = "new_person_registered"
	OutcomeAnalysisFailed Outcome = "analysis_failed"
)

// ErrInvalidThreshold is returned for thresholds outside (0, 1].
var ErrInvalidThreshold = errors.New("threshold must be in (0, 1]")

// DuplicateCounter persists the duplicate-hit count for the event that first
// saw a fingerprint.
type DuplicateCounter interface {
	IncrementDuplicateHits(ctx context.Context, eventID uuid.UUID) error
}

// Publisher fans resolved detections out to live consumers. Fan-out failure
// never fails the request.
type Publisher interface {
	PublishDetection(ctx context.Context, outcome string, data interface{}) error
}

// CheckInput is one analyzed face submission. Embedding is meaningful only
// when FacesFound == 1; Threshold == 0 selects the engine default.
type CheckInput struct {
	FacesFound  int
	Embedding   []float32
	Attributes  models.Attributes
	Fingerprint string
	Threshold   float64
}

// Result is the decision for one check request. Identity and Event are set
// for the recognized and registered outcomes; OriginalEventID for exact
// duplicates. Confidence is this request's similarity score, or the sentinel
// when an identity was just registered.
type Result struct {
	Outcome         Outcome
	Identity        *models.Identity
	Event           *models.DetectionEvent
	OriginalEventID uuid.UUID
	Confidence      float64
}

// Notice is the payload published for every recognized or registered
// detection.
type Notice struct {
	Outcome         Outcome   `json:"outcome"`
	IdentityID      uuid.UUID `json:"identity_id"`
	DisplayCode     string    `json:"display_code"`
	Confidence      float64   `json:"confidence"`
	TotalDetections int       `json:"total_detections"`
	EventID         uuid.UUID `json:"event_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Engine resolves one analyzed face into an identity decision. A single
// mutex serializes the fingerprint-check → gallery-lookup → mutation
// sequence, so two racing submissions of the same person (or the same image)
// can never both win. The external analyzer runs before Check is called and
// therefore never holds this lock.
type Engine struct {
	mu               sync.Mutex
	gallery          *gallery.Gallery
	prints           *fingerprint.Index
	dupes            DuplicateCounter
	publisher        Publisher
	defaultThreshold float64
}

func New(g *gallery.Gallery, prints *fingerprint.Index, dupes DuplicateCounter, defaultThreshold float64) *Engine {
	return &Engine{
		gallery:          g,
		prints:           prints,
		dupes:            dupes,
		defaultThreshold: defaultThreshold,
	}
}

// SetPublisher attaches a live fan-out. Optional; call before serving.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// Check runs the per-request state machine:
//
//	Start → DuplicateCheck → ExactDuplicate
//	                       → GalleryLookup → Recognized | NewRegistration
//
// with NoFace and MultipleFaces short-circuiting before the duplicate check.
// Mutations for each terminal outcome are atomic; a failed request leaves
// gallery and fingerprint state untouched.
func (e *Engine) Check(ctx context.Context, in CheckInput) (*Result, error) {
	threshold := in.Threshold
	if threshold == 0 {
		threshold = e.defaultThreshold
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, in.Threshold)
	}

	if in.FacesFound == 0 {
		observability.ChecksTotal.WithLabelValues(string(OutcomeNoFace)).Inc()
		return &Result{Outcome: OutcomeNoFace}, nil
	}
	if in.FacesFound > 1 {
		observability.ChecksTotal.WithLabelValues(string(OutcomeMultipleFaces)).Inc()
		return &Result{Outcome: OutcomeMultipleFaces}, nil
	}

	res, err := e.resolve(ctx, in, threshold)
	if err != nil {
		return nil, err
	}
	observability.ChecksTotal.WithLabelValues(string(res.Outcome)).Inc()

	if e.publisher != nil && (res.Outcome == OutcomeRecognized || res.Outcome == OutcomeRegistered) {
		notice := Notice{
			Outcome:         res.Outcome,
			IdentityID:      res.Identity.ID,
			DisplayCode:     res.Identity.DisplayCode,
			Confidence:      res.Confidence,
			TotalDetections: res.Identity.TotalDetections,
			EventID:         res.Event.ID,
			OccurredAt:      res.Event.OccurredAt,
		}
		if err := e.publisher.PublishDetection(ctx, string(res.Outcome), notice); err != nil {
			slog.Warn("publish detection", "error", err, "event", res.Event.ID)
		}
	}

	return res, nil
}

// resolve holds the critical section: the read-decide-write sequence over
// the fingerprint index and the gallery.
func (e *Engine) resolve(ctx context.Context, in CheckInput, threshold float64) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if originalID, seen := e.prints.Lookup(in.Fingerprint); seen {
		if err := e.dupes.IncrementDuplicateHits(ctx, originalID); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeExactDuplicate, OriginalEventID: originalID}, nil
	}

	start := time.Now()
	match, score, err := e.gallery.BestMatch(in.Embedding, threshold)
	observability.StageDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		identity *models.Identity
		event    *models.DetectionEvent
	)

	start = time.Now()
	if match != nil {
		identity, event, err = e.gallery.RecordMatch(ctx, match.ID, score, in.Attributes, in.Fingerprint, now)
	} else {
		identity, event, err = e.gallery.Insert(ctx, in.Embedding, in.Attributes, in.Fingerprint, now)
	}
	observability.StageDuration.WithLabelValues("persist").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	e.prints.Record(in.Fingerprint, event.ID)
	observability.GalleryIdentities.Set(float64(e.gallery.Size()))

	if match != nil {
		return &Result{Outcome: OutcomeRecognized, Identity: identity, Event: event, Confidence: score}, nil
	}
	return &Result{Outcome: OutcomeRegistered, Identity: identity, Event: event, Confidence: models.ConfidenceSentinel}, nil
}

// GallerySize reports the number of registered identities.
func (e *Engine) GallerySize() int {
	return e.gallery.Size()
}
