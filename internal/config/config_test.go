package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: facereg
  user: facereg
  password: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d; want 8080", cfg.Server.Port)
	}
	if cfg.Matching.DefaultThreshold != 0.65 {
		t.Errorf("DefaultThreshold = %f; want 0.65", cfg.Matching.DefaultThreshold)
	}
	if cfg.Matching.EmbeddingDim != 512 {
		t.Errorf("EmbeddingDim = %d; want 512", cfg.Matching.EmbeddingDim)
	}
	if cfg.Analyzer.Timeout != 30*time.Second {
		t.Errorf("Analyzer.Timeout = %v; want 30s", cfg.Analyzer.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
database:
  host: localhost
matching:
  default_threshold: 0.65
`)

	t.Setenv("FACEREG_SERVER_PORT", "9090")
	t.Setenv("FACEREG_DB_HOST", "db.internal")
	t.Setenv("FACEREG_DEFAULT_THRESHOLD", "0.8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d; want 9090", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %s; want db.internal", cfg.Database.Host)
	}
	if cfg.Matching.DefaultThreshold != 0.8 {
		t.Errorf("DefaultThreshold = %f; want 0.8", cfg.Matching.DefaultThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "localhost", Port: 5432, Name: "facereg", User: "u", Password: "p"}
	want := "postgres://u:p@localhost:5432/facereg?sslmode=disable"
	if got := db.DSN(); got != want {
		t.Errorf("DSN() = %s; want %s", got, want)
	}
}
