package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/your-org/facereg/internal/config"
	"github.com/your-org/facereg/internal/models"
)

func newTestClient(url string) *Client {
	return NewClient(config.AnalyzerConfig{URL: url})
}

func TestAnalyzeSingleFace(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("path = %s; want /analyze", r.URL.Path)
		}
		gotContentType = r.Header.Get("Content-Type")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file form field: %v", err)
		}
		json.NewEncoder(w).Encode(Result{
			FacesFound: 1,
			Embedding:  []float32{0.1, 0.2, 0.3},
			Age:        34,
			Gender:     models.AttributeScores{Dominant: "Man", Scores: map[string]float64{"Man": 0.98, "Woman": 0.02}},
			Emotion:    models.AttributeScores{Dominant: "neutral"},
			Ethnicity:  models.AttributeScores{Dominant: "white"},
		})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Analyze(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.FacesFound != 1 || len(res.Embedding) != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
	if gotContentType == "" {
		t.Error("request was not multipart")
	}

	attrs := res.Attributes()
	if attrs.Age != 34 || attrs.Gender.Dominant != "Man" {
		t.Errorf("Attributes() = %+v", attrs)
	}
}

func TestAnalyzeNoFace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{FacesFound: 0})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Analyze(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.FacesFound != 0 {
		t.Errorf("FacesFound = %d; want 0", res.FacesFound)
	}
}

func TestAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Analyze(context.Background(), []byte("jpeg-bytes"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestAnalyzeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL).Analyze(context.Background(), []byte("jpeg-bytes"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s; want /health", r.URL.Path)
		}
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
