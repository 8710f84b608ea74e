// Command submitter feeds a directory of images through the check endpoint.
// Useful for backfilling a gallery from an existing photo archive and for
// smoke-testing a deployment.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/your-org/facereg/internal/observability"
	"github.com/your-org/facereg/pkg/dto"
)

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "base URL of the facereg API")
	apiKey := flag.String("api-key", "", "API key (or set FACEREG_API_KEY)")
	dir := flag.String("dir", ".", "directory of images to submit")
	threshold := flag.Float64("threshold", 0, "per-request match threshold (0 uses the server default)")
	flag.Parse()

	observability.SetupLogger("info", "text")

	key := *apiKey
	if key == "" {
		key = os.Getenv("FACEREG_API_KEY")
	}

	images, err := collectImages(*dir)
	if err != nil {
		slog.Error("collect images", "error", err)
		os.Exit(1)
	}
	if len(images) == 0 {
		slog.Error("no images found", "dir", *dir)
		os.Exit(1)
	}
	slog.Info("submitting images", "count", len(images), "api", *apiURL)

	client := &http.Client{Timeout: 60 * time.Second}
	counts := map[string]int{}

	for _, path := range images {
		status, err := submit(client, *apiURL, key, path, *threshold)
		if err != nil {
			slog.Error("submit failed", "file", path, "error", err)
			counts["failed"]++
			continue
		}
		slog.Info("submitted", "file", filepath.Base(path), "status", status)
		counts[status]++
	}

	for status, n := range counts {
		fmt.Printf("%-24s %d\n", status, n)
	}
}

func collectImages(dir string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg", ".png", ".webp":
			images = append(images, path)
		}
		return nil
	})
	return images, err
}

func submit(client *http.Client, apiURL, apiKey, path string, threshold float64) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if threshold > 0 {
		if err := writer.WriteField("threshold", fmt.Sprintf("%g", threshold)); err != nil {
			return "", fmt.Errorf("write threshold: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/v1/check", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var check dto.CheckResponse
	if err := json.Unmarshal(body, &check); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return check.Status, nil
}
