package gallery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/models"
)

// memStore is an in-memory gallery.Store for tests.
type memStore struct {
	identities []models.Identity
	events     []models.DetectionEvent
	failNext   error
}

func (m *memStore) InsertIdentity(_ context.Context, identity *models.Identity, event *models.DetectionEvent) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.identities = append(m.identities, *identity)
	m.events = append(m.events, *event)
	return nil
}

func (m *memStore) RecordMatch(_ context.Context, identity *models.Identity, event *models.DetectionEvent) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	for i := range m.identities {
		if m.identities[i].ID == identity.ID {
			m.identities[i] = *identity
		}
	}
	m.events = append(m.events, *event)
	return nil
}

// fixedCodeGenerator always returns the same code, to force collisions.
type fixedCodeGenerator struct{ code string }

func (g fixedCodeGenerator) Generate(time.Time) string { return g.code }

func testGallery() (*Gallery, *memStore) {
	store := &memStore{}
	return New(store, NewSequentialCodeGenerator()), store
}

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestInsertRegistersIdentity(t *testing.T) {
	g, store := testGallery()

	identity, event, err := g.Insert(context.Background(), []float32{1, 0, 0}, models.Attributes{Age: 30}, "fp-1", testTime)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if identity.DisplayCode != "PERSON_20260314_0926_0000" {
		t.Errorf("DisplayCode = %s; want PERSON_20260314_0926_0000", identity.DisplayCode)
	}
	if identity.TotalDetections != 1 {
		t.Errorf("TotalDetections = %d; want 1", identity.TotalDetections)
	}
	if !identity.FirstSeen.Equal(testTime) || !identity.LastSeen.Equal(testTime) {
		t.Errorf("FirstSeen/LastSeen = %v/%v; want %v", identity.FirstSeen, identity.LastSeen, testTime)
	}
	if event.Confidence != models.ConfidenceSentinel {
		t.Errorf("registration event confidence = %f; want sentinel %f", event.Confidence, models.ConfidenceSentinel)
	}
	if event.IdentityID != identity.ID {
		t.Errorf("event identity = %s; want %s", event.IdentityID, identity.ID)
	}
	if len(store.identities) != 1 || len(store.events) != 1 {
		t.Errorf("store has %d identities, %d events; want 1, 1", len(store.identities), len(store.events))
	}
}

func TestBestMatchThreshold(t *testing.T) {
	g, _ := testGallery()
	if _, _, err := g.Insert(context.Background(), []float32{1, 0, 0}, models.Attributes{}, "fp-1", testTime); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Query at ~45 degrees scores ~0.707 against the registered embedding.
	query := []float32{1, 1, 0}

	match, score, err := g.BestMatch(query, 0.9)
	if err != nil {
		t.Fatalf("BestMatch failed: %v", err)
	}
	if match != nil {
		t.Errorf("BestMatch above threshold 0.9 = %v (score %f); want nil", match.DisplayCode, score)
	}

	match, score, err = g.BestMatch(query, 0.65)
	if err != nil {
		t.Fatalf("BestMatch failed: %v", err)
	}
	if match == nil {
		t.Fatal("BestMatch below threshold 0.65 = nil; want match")
	}
	if math.Abs(score-math.Sqrt2/2) > 0.01 {
		t.Errorf("score = %f; want ~%f", score, math.Sqrt2/2)
	}
}

func TestBestMatchPicksMaximum(t *testing.T) {
	g, _ := testGallery()
	ctx := context.Background()

	far, _, err := g.Insert(ctx, []float32{0, 1, 0}, models.Attributes{}, "fp-far", testTime)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	near, _, err := g.Insert(ctx, []float32{1, 0.1, 0}, models.Attributes{}, "fp-near", testTime)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	match, _, err := g.BestMatch([]float32{1, 0, 0}, 0.1)
	if err != nil {
		t.Fatalf("BestMatch failed: %v", err)
	}
	if match == nil {
		t.Fatal("BestMatch = nil; want match")
	}
	if match.ID != near.ID {
		t.Errorf("BestMatch = %s; want %s (not %s)", match.DisplayCode, near.DisplayCode, far.DisplayCode)
	}
}

func TestBestMatchTieBreakEarliestFirstSeen(t *testing.T) {
	g, _ := testGallery()

	emb := []float32{1, 0, 0}
	younger := models.Identity{
		ID: uuid.New(), DisplayCode: "PERSON_20260314_0930_0001", Embedding: emb,
		FirstSeen: testTime.Add(time.Hour), LastSeen: testTime.Add(time.Hour), TotalDetections: 1,
	}
	older := models.Identity{
		ID: uuid.New(), DisplayCode: "PERSON_20260314_0926_0000", Embedding: emb,
		FirstSeen: testTime, LastSeen: testTime, TotalDetections: 1,
	}
	g.Load([]models.Identity{younger, older})

	for i := 0; i < 10; i++ {
		match, score, err := g.BestMatch(emb, 0.65)
		if err != nil {
			t.Fatalf("BestMatch failed: %v", err)
		}
		if match == nil {
			t.Fatal("BestMatch = nil; want match")
		}
		if score != 1.0 {
			t.Errorf("score = %f; want 1.0", score)
		}
		if match.ID != older.ID {
			t.Fatalf("tie resolved to %s; want oldest %s", match.DisplayCode, older.DisplayCode)
		}
	}
}

func TestRecordMatchRunningAverage(t *testing.T) {
	g, _ := testGallery()
	ctx := context.Background()

	identity, _, err := g.Insert(ctx, []float32{1, 0, 0}, models.Attributes{}, "fp-0", testTime)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	scores := []float64{0.91, 0.74, 0.88, 0.69, 0.95}
	var sum float64
	for i, s := range scores {
		sum += s
		updated, event, err := g.RecordMatch(ctx, identity.ID, s, models.Attributes{}, fmt.Sprintf("fp-%d", i+1), testTime.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("RecordMatch %d failed: %v", i, err)
		}
		if event.Confidence != s {
			t.Errorf("event confidence = %f; want %f", event.Confidence, s)
		}
		if updated.TotalDetections != i+2 {
			t.Errorf("TotalDetections = %d; want %d", updated.TotalDetections, i+2)
		}
		mean := sum / float64(i+1)
		if math.Abs(updated.ConfidenceAvg-mean) > 1e-9 {
			t.Errorf("ConfidenceAvg after %d matches = %f; want mean %f", i+1, updated.ConfidenceAvg, mean)
		}
	}
}

func TestRecordMatchKeepsRepresentativeEmbedding(t *testing.T) {
	g, _ := testGallery()
	ctx := context.Background()

	original := []float32{1, 0, 0}
	identity, _, err := g.Insert(ctx, original, models.Attributes{}, "fp-0", testTime)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, _, err := g.RecordMatch(ctx, identity.ID, 0.8, models.Attributes{}, "fp-1", testTime.Add(time.Minute)); err != nil {
		t.Fatalf("RecordMatch failed: %v", err)
	}

	got, ok := g.Get(identity.ID)
	if !ok {
		t.Fatal("identity disappeared")
	}
	for i := range original {
		if got.Embedding[i] != original[i] {
			t.Fatalf("representative embedding changed: %v vs %v", got.Embedding, original)
		}
	}
}

func TestInsertCodeCollision(t *testing.T) {
	store := &memStore{}
	g := New(store, fixedCodeGenerator{code: "PERSON_20260314_0926_dead"})
	ctx := context.Background()

	if _, _, err := g.Insert(ctx, []float32{1, 0, 0}, models.Attributes{}, "fp-1", testTime); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	_, _, err := g.Insert(ctx, []float32{0, 1, 0}, models.Attributes{}, "fp-2", testTime)
	if !errors.Is(err, ErrCodeCollision) {
		t.Errorf("expected ErrCodeCollision, got %v", err)
	}
	if g.Size() != 1 {
		t.Errorf("Size = %d after failed insert; want 1", g.Size())
	}
}

func TestStoreFailureLeavesGalleryUnchanged(t *testing.T) {
	g, store := testGallery()
	ctx := context.Background()

	identity, _, err := g.Insert(ctx, []float32{1, 0, 0}, models.Attributes{}, "fp-0", testTime)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	store.failNext = errors.New("connection refused")
	if _, _, err := g.RecordMatch(ctx, identity.ID, 0.9, models.Attributes{}, "fp-1", testTime.Add(time.Minute)); err == nil {
		t.Fatal("expected store error to propagate")
	}

	got, _ := g.Get(identity.ID)
	if got.TotalDetections != 1 {
		t.Errorf("TotalDetections = %d after failed persist; want 1", got.TotalDetections)
	}

	store.failNext = errors.New("connection refused")
	if _, _, err := g.Insert(ctx, []float32{0, 1, 0}, models.Attributes{}, "fp-2", testTime); err == nil {
		t.Fatal("expected store error to propagate")
	}
	if g.Size() != 1 {
		t.Errorf("Size = %d after failed insert; want 1", g.Size())
	}
}

func TestRandomCodeGeneratorFormat(t *testing.T) {
	gen := NewRandomCodeGenerator()
	code := gen.Generate(testTime)

	if !strings.HasPrefix(code, "PERSON_20260314_0926_") {
		t.Errorf("code = %s; want PERSON_20260314_0926_ prefix", code)
	}
	suffix := strings.TrimPrefix(code, "PERSON_20260314_0926_")
	if len(suffix) != 4 {
		t.Errorf("suffix = %q; want 4 hex characters", suffix)
	}
}
