package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/analyzer"
	"github.com/your-org/facereg/internal/engine"
	"github.com/your-org/facereg/internal/fingerprint"
	"github.com/your-org/facereg/internal/gallery"
	"github.com/your-org/facereg/internal/models"
	"github.com/your-org/facereg/pkg/dto"
)

// memStore satisfies gallery.Store and engine.DuplicateCounter without a
// database.
type memStore struct {
	mu      sync.Mutex
	inserts int
	matches int
	dupHits int
}

func (m *memStore) InsertIdentity(context.Context, *models.Identity, *models.DetectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	return nil
}

func (m *memStore) RecordMatch(context.Context, *models.Identity, *models.DetectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches++
	return nil
}

func (m *memStore) IncrementDuplicateHits(context.Context, uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dupHits++
	return nil
}

// fakeAnalyzer returns a canned verdict regardless of image bytes.
type fakeAnalyzer struct {
	result *analyzer.Result
	err    error
}

func (f *fakeAnalyzer) Analyze(context.Context, []byte) (*analyzer.Result, error) {
	return f.result, f.err
}

// memSink records retained images by key.
type memSink struct {
	mu   sync.Mutex
	keys []string
}

func (m *memSink) Put(_ context.Context, key string, _ []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return nil
}

func newCheckRouter(t *testing.T, faces Analyzer, sink ImageSink) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memStore{}
	gal := gallery.New(store, gallery.NewSequentialCodeGenerator())
	eng := engine.New(gal, fingerprint.NewIndex(), store, 0.65)

	r := gin.New()
	r.POST("/v1/check", NewCheckHandler(eng, faces, sink).Check)
	return r
}

func postImage(t *testing.T, router *gin.Engine, image []byte, query string) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "face.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("write image: %v", err)
	}
	writer.Close()

	url := "/v1/check"
	if query != "" {
		url += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeCheck(t *testing.T, rec *httptest.ResponseRecorder) dto.CheckResponse {
	t.Helper()
	var resp dto.CheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func singleFaceVerdict(embedding []float32) *analyzer.Result {
	return &analyzer.Result{
		FacesFound: 1,
		Embedding:  embedding,
		Age:        30,
		Gender:     models.AttributeScores{Dominant: "Woman"},
		Emotion:    models.AttributeScores{Dominant: "happy"},
		Ethnicity:  models.AttributeScores{Dominant: "asian"},
	}
}

func TestCheckRegistersNewPerson(t *testing.T) {
	sink := &memSink{}
	router := newCheckRouter(t, &fakeAnalyzer{result: singleFaceVerdict([]float32{1, 0, 0})}, sink)

	rec := postImage(t, router, []byte("image-one"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}

	resp := decodeCheck(t, rec)
	if resp.Status != string(engine.OutcomeRegistered) {
		t.Fatalf("status = %s; want %s", resp.Status, engine.OutcomeRegistered)
	}
	if resp.SeenBefore {
		t.Error("SeenBefore = true for a new person")
	}
	if !strings.HasPrefix(resp.DisplayCode, "PERSON_") {
		t.Errorf("DisplayCode = %q; want PERSON_ prefix", resp.DisplayCode)
	}
	if resp.Confidence != nil {
		t.Errorf("Confidence = %v; want omitted for registration", *resp.Confidence)
	}
	if resp.Attributes == nil || resp.Attributes.Gender.Dominant != "Woman" {
		t.Errorf("Attributes = %+v", resp.Attributes)
	}

	// Registration image plus event snapshot.
	if len(sink.keys) != 2 {
		t.Errorf("retained %d images; want 2 (%v)", len(sink.keys), sink.keys)
	}
}

func TestCheckRecognizesKnownPerson(t *testing.T) {
	sink := &memSink{}
	router := newCheckRouter(t, &fakeAnalyzer{result: singleFaceVerdict([]float32{1, 0, 0})}, sink)

	postImage(t, router, []byte("image-one"), "")
	rec := postImage(t, router, []byte("image-two"), "")

	resp := decodeCheck(t, rec)
	if resp.Status != string(engine.OutcomeRecognized) {
		t.Fatalf("status = %s; want %s", resp.Status, engine.OutcomeRecognized)
	}
	if !resp.SeenBefore {
		t.Error("SeenBefore = false for a recognized person")
	}
	if resp.Confidence == nil || *resp.Confidence < 0.99 {
		t.Errorf("Confidence = %v; want ~1.0 for identical embeddings", resp.Confidence)
	}
	if resp.TotalDetections != 2 {
		t.Errorf("TotalDetections = %d; want 2", resp.TotalDetections)
	}
}

func TestCheckExactDuplicate(t *testing.T) {
	router := newCheckRouter(t, &fakeAnalyzer{result: singleFaceVerdict([]float32{1, 0, 0})}, &memSink{})

	postImage(t, router, []byte("same-bytes"), "")
	rec := postImage(t, router, []byte("same-bytes"), "")

	resp := decodeCheck(t, rec)
	if resp.Status != string(engine.OutcomeExactDuplicate) {
		t.Fatalf("status = %s; want %s", resp.Status, engine.OutcomeExactDuplicate)
	}
	if !resp.SeenBefore {
		t.Error("SeenBefore = false for an exact duplicate")
	}
	if resp.OriginalEventID == nil {
		t.Error("OriginalEventID missing")
	}
}

func TestCheckNoFace(t *testing.T) {
	router := newCheckRouter(t, &fakeAnalyzer{result: &analyzer.Result{FacesFound: 0}}, &memSink{})

	resp := decodeCheck(t, postImage(t, router, []byte("landscape"), ""))
	if resp.Status != string(engine.OutcomeNoFace) {
		t.Errorf("status = %s; want %s", resp.Status, engine.OutcomeNoFace)
	}
	if resp.IdentityID != nil {
		t.Error("IdentityID set for no_face")
	}
}

func TestCheckMultipleFaces(t *testing.T) {
	router := newCheckRouter(t, &fakeAnalyzer{result: &analyzer.Result{FacesFound: 2}}, &memSink{})

	resp := decodeCheck(t, postImage(t, router, []byte("group-photo"), ""))
	if resp.Status != string(engine.OutcomeMultipleFaces) {
		t.Errorf("status = %s; want %s", resp.Status, engine.OutcomeMultipleFaces)
	}
}

func TestCheckAnalyzerFailure(t *testing.T) {
	router := newCheckRouter(t, &fakeAnalyzer{err: errors.New("analyzer timeout")}, &memSink{})

	rec := postImage(t, router, []byte("image"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}

	resp := decodeCheck(t, rec)
	if resp.Status != string(engine.OutcomeAnalysisFailed) {
		t.Errorf("status = %s; want %s", resp.Status, engine.OutcomeAnalysisFailed)
	}
	if resp.Error == "" {
		t.Error("Error field empty")
	}
}

func TestCheckThresholdOverride(t *testing.T) {
	// Second embedding scores ~0.894 against the first: below a 0.95
	// threshold it registers, above 0.85 it is recognized.
	faces := &fakeAnalyzer{result: singleFaceVerdict([]float32{1, 0, 0})}
	router := newCheckRouter(t, faces, &memSink{})

	postImage(t, router, []byte("image-one"), "")

	faces.result = singleFaceVerdict([]float32{1, 0.5, 0})
	resp := decodeCheck(t, postImage(t, router, []byte("image-two"), "threshold=0.95"))
	if resp.Status != string(engine.OutcomeRegistered) {
		t.Errorf("strict status = %s; want %s", resp.Status, engine.OutcomeRegistered)
	}

	resp = decodeCheck(t, postImage(t, router, []byte("image-three"), "threshold=0.85"))
	if resp.Status != string(engine.OutcomeRecognized) {
		t.Errorf("lax status = %s; want %s", resp.Status, engine.OutcomeRecognized)
	}
}

func TestCheckInvalidThreshold(t *testing.T) {
	router := newCheckRouter(t, &fakeAnalyzer{result: singleFaceVerdict([]float32{1, 0, 0})}, &memSink{})

	for _, query := range []string{"threshold=1.5", "threshold=-0.2", "threshold=abc"} {
		rec := postImage(t, router, []byte("image"), query)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d; want 400", query, rec.Code)
		}
	}
}

func TestCheckMissingFile(t *testing.T) {
	router := newCheckRouter(t, &fakeAnalyzer{result: singleFaceVerdict([]float32{1, 0, 0})}, &memSink{})

	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}
