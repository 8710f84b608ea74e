package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/models"
	"github.com/your-org/facereg/internal/similarity"
)

// ErrCodeCollision is returned when every generated display code candidate
// collided with an existing one. Callers may retry the insert.
var ErrCodeCollision = errors.New("identity code collision: disambiguator space exhausted")

// maxCodeAttempts bounds display code generation per insert.
const maxCodeAttempts = 16

// Store persists gallery mutations. Each call must be atomic: either the
// identity and its detection event are both durable, or neither is.
type Store interface {
	InsertIdentity(ctx context.Context, identity *models.Identity, event *models.DetectionEvent) error
	RecordMatch(ctx context.Context, identity *models.Identity, event *models.DetectionEvent) error
}

// Gallery owns all registered identities. It keeps the full set in memory
// for exhaustive best-match scans (gallery size is modest by design) and
// writes through to the Store. Insert and RecordMatch are its only mutation
// entry points.
type Gallery struct {
	mu         sync.RWMutex
	store      Store
	codes      CodeGenerator
	identities map[uuid.UUID]*models.Identity
	byCode     map[string]struct{}
}

func New(store Store, codes CodeGenerator) *Gallery {
	return &Gallery{
		store:      store,
		codes:      codes,
		identities: make(map[uuid.UUID]*models.Identity),
		byCode:     make(map[string]struct{}),
	}
}

// Load replaces the in-memory set with a snapshot from storage.
func (g *Gallery) Load(identities []models.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.identities = make(map[uuid.UUID]*models.Identity, len(identities))
	g.byCode = make(map[string]struct{}, len(identities))
	for i := range identities {
		id := identities[i]
		g.identities[id.ID] = &id
		g.byCode[id.DisplayCode] = struct{}{}
	}
}

// Size returns the number of registered identities.
func (g *Gallery) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.identities)
}

// Get returns a copy of the identity, if registered.
func (g *Gallery) Get(id uuid.UUID) (*models.Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	identity, ok := g.identities[id]
	if !ok {
		return nil, false
	}
	cp := *identity
	return &cp, true
}

// BestMatch scans all identities and returns the one whose representative
// embedding scores highest against the query, provided that score reaches
// the threshold; otherwise it returns nil. Equal maximum scores resolve to
// the identity with the earliest FirstSeen.
func (g *Gallery) BestMatch(query []float32, threshold float64) (*models.Identity, float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var best *models.Identity
	var bestScore float64

	for _, identity := range g.identities {
		score, err := similarity.Compare(query, identity.Embedding)
		if err != nil {
			return nil, 0, fmt.Errorf("compare against %s: %w", identity.DisplayCode, err)
		}
		switch {
		case best == nil && score >= threshold:
			best, bestScore = identity, score
		case best != nil && score > bestScore:
			best, bestScore = identity, score
		case best != nil && score == bestScore && identity.FirstSeen.Before(best.FirstSeen):
			best = identity
		}
	}

	if best == nil {
		return nil, 0, nil
	}
	cp := *best
	return &cp, bestScore, nil
}

// Insert registers a new identity around the given embedding. The embedding
// becomes the identity's representative for its whole lifetime. The returned
// detection event is the registration event and carries the confidence
// sentinel instead of a similarity score.
func (g *Gallery) Insert(ctx context.Context, embedding []float32, attrs models.Attributes, fp string, now time.Time) (*models.Identity, *models.DetectionEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code, err := g.uniqueCode(now)
	if err != nil {
		return nil, nil, err
	}

	emb := make([]float32, len(embedding))
	copy(emb, embedding)

	identity := &models.Identity{
		ID:              uuid.New(),
		DisplayCode:     code,
		Embedding:       emb,
		FirstSeen:       now,
		LastSeen:        now,
		TotalDetections: 1,
		ConfidenceAvg:   0,
		Attributes:      attrs,
	}
	event := &models.DetectionEvent{
		ID:          uuid.New(),
		IdentityID:  identity.ID,
		OccurredAt:  now,
		Confidence:  models.ConfidenceSentinel,
		Fingerprint: fp,
		Attributes:  attrs,
	}

	if err := g.store.InsertIdentity(ctx, identity, event); err != nil {
		return nil, nil, fmt.Errorf("persist identity: %w", err)
	}

	g.identities[identity.ID] = identity
	g.byCode[code] = struct{}{}

	cp := *identity
	ev := *event
	return &cp, &ev, nil
}

// RecordMatch attributes one more detection to an existing identity: bumps
// LastSeen and TotalDetections and folds the score into the running average
// of match confidences. The registration event never contributes to that
// average, so the divisor is TotalDetections-1. The representative embedding
// is left untouched.
func (g *Gallery) RecordMatch(ctx context.Context, id uuid.UUID, score float64, attrs models.Attributes, fp string, now time.Time) (*models.Identity, *models.DetectionEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	identity, ok := g.identities[id]
	if !ok {
		return nil, nil, fmt.Errorf("identity %s not registered", id)
	}

	updated := *identity
	updated.LastSeen = now
	updated.TotalDetections++
	matches := float64(updated.TotalDetections - 1)
	updated.ConfidenceAvg += (score - updated.ConfidenceAvg) / matches

	event := &models.DetectionEvent{
		ID:          uuid.New(),
		IdentityID:  id,
		OccurredAt:  now,
		Confidence:  score,
		Fingerprint: fp,
		Attributes:  attrs,
	}

	if err := g.store.RecordMatch(ctx, &updated, event); err != nil {
		return nil, nil, fmt.Errorf("persist match: %w", err)
	}

	*identity = updated

	cp := updated
	ev := *event
	return &cp, &ev, nil
}

// uniqueCode generates a display code not yet in use. Caller holds g.mu.
func (g *Gallery) uniqueCode(now time.Time) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := g.codes.Generate(now)
		if _, taken := g.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeCollision
}
