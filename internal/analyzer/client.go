package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/facereg/internal/config"
	"github.com/your-org/facereg/internal/models"
)

// ErrUnavailable wraps transport failures and non-2xx analyzer responses so
// callers can map them to the analysis_failed outcome.
var ErrUnavailable = errors.New("analyzer unavailable")

// Result is one analyzer verdict for an uploaded image. FacesFound drives the
// engine's short-circuit outcomes; Embedding and the attribute scores are
// meaningful only when exactly one face was found.
type Result struct {
	FacesFound int                    `json:"faces_found"`
	Embedding  []float32              `json:"embedding"`
	Age        int                    `json:"age"`
	Gender     models.AttributeScores `json:"gender"`
	Emotion    models.AttributeScores `json:"emotion"`
	Ethnicity  models.AttributeScores `json:"ethnicity"`
}

// Attributes converts the analyzer's raw scores into the dominant-label
// attribute set stored with identities and events.
func (r *Result) Attributes() models.Attributes {
	return models.Attributes{
		Age:       r.Age,
		Gender:    r.Gender,
		Emotion:   r.Emotion,
		Ethnicity: r.Ethnicity,
	}
}

// Client talks to the external face analysis service over HTTP. The service
// owns detection, embedding extraction and demographic estimation; this
// process never loads models itself.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.AnalyzerConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Analyze submits raw image bytes and returns the analyzer's verdict.
func (c *Client) Analyze(ctx context.Context, image []byte) (*Result, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse analyzer response: %w", err)
	}
	if result.FacesFound == 1 && len(result.Embedding) == 0 {
		return nil, fmt.Errorf("analyzer returned a face without an embedding")
	}
	return &result, nil
}

// Ping checks analyzer reachability for the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
