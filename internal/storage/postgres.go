package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facereg/internal/config"
	"github.com/your-org/facereg/internal/models"
)

type PostgresStore struct {
	pool         *pgxpool.Pool
	embeddingDim int
}

func NewPostgresStore(cfg config.DatabaseConfig, embeddingDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, embeddingDim: embeddingDim}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the identity and detection event tables if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS identities (
			id UUID PRIMARY KEY,
			display_code TEXT NOT NULL UNIQUE,
			embedding vector(%d) NOT NULL,
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL,
			total_detections INT NOT NULL,
			confidence_avg DOUBLE PRECISION NOT NULL,
			attributes JSONB NOT NULL DEFAULT '{}'
		)`, s.embeddingDim),
		`CREATE TABLE IF NOT EXISTS detection_events (
			id UUID PRIMARY KEY,
			identity_id UUID NOT NULL REFERENCES identities(id),
			occurred_at TIMESTAMPTZ NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			fingerprint TEXT NOT NULL,
			duplicate_hits INT NOT NULL DEFAULT 0,
			attributes JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detection_events_fingerprint ON detection_events (fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_detection_events_identity ON detection_events (identity_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Startup snapshots ---

// LoadIdentities returns every registered identity with its representative
// embedding, for the in-memory gallery.
func (s *PostgresStore) LoadIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_code, embedding, first_seen, last_seen, total_detections, confidence_avg, attributes
		 FROM identities`)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

// LoadFingerprints returns, per fingerprint, the event that first saw it.
func (s *PostgresStore) LoadFingerprints(ctx context.Context) (map[string]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (fingerprint) fingerprint, id
		 FROM detection_events ORDER BY fingerprint, occurred_at`)
	if err != nil {
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}
	defer rows.Close()

	prints := make(map[string]uuid.UUID)
	for rows.Next() {
		var fp string
		var eventID uuid.UUID
		if err := rows.Scan(&fp, &eventID); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		prints[fp] = eventID
	}
	return prints, rows.Err()
}

// --- Gallery mutations (each atomic in one transaction) ---

// InsertIdentity persists a new identity together with its registration event.
func (s *PostgresStore) InsertIdentity(ctx context.Context, identity *models.Identity, event *models.DetectionEvent) error {
	attrs, err := json.Marshal(identity.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO identities (id, display_code, embedding, first_seen, last_seen, total_detections, confidence_avg, attributes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			identity.ID, identity.DisplayCode, pgvector.NewVector(identity.Embedding),
			identity.FirstSeen, identity.LastSeen, identity.TotalDetections, identity.ConfidenceAvg, attrs)
		if err != nil {
			return fmt.Errorf("insert identity: %w", err)
		}
		return s.insertEvent(ctx, tx, event)
	})
}

// RecordMatch persists updated identity aggregates together with the new
// detection event.
func (s *PostgresStore) RecordMatch(ctx context.Context, identity *models.Identity, event *models.DetectionEvent) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE identities SET last_seen = $1, total_detections = $2, confidence_avg = $3 WHERE id = $4`,
			identity.LastSeen, identity.TotalDetections, identity.ConfidenceAvg, identity.ID)
		if err != nil {
			return fmt.Errorf("update identity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("identity %s not found", identity.ID)
		}
		return s.insertEvent(ctx, tx, event)
	})
}

func (s *PostgresStore) insertEvent(ctx context.Context, tx pgx.Tx, event *models.DetectionEvent) error {
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO detection_events (id, identity_id, occurred_at, confidence, fingerprint, duplicate_hits, attributes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.IdentityID, event.OccurredAt, event.Confidence, event.Fingerprint, event.DuplicateHits, attrs)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// IncrementDuplicateHits counts one more byte-identical re-submission
// against the event that first saw the fingerprint.
func (s *PostgresStore) IncrementDuplicateHits(ctx context.Context, eventID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE detection_events SET duplicate_hits = duplicate_hits + 1 WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("increment duplicate hits: %w", err)
	}
	return nil
}

// --- Queries ---

func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_code, embedding, first_seen, last_seen, total_detections, confidence_avg, attributes
		 FROM identities ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_code, embedding, first_seen, last_seen, total_detections, confidence_avg, attributes
		 FROM identities WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanIdentity(rows)
}

// EventsForIdentity returns an identity's detection events, newest first.
func (s *PostgresStore) EventsForIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]models.DetectionEvent, error) {
	limit = clampLimit(limit)
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, occurred_at, confidence, fingerprint, duplicate_hits, attributes
		 FROM detection_events WHERE identity_id = $1 ORDER BY occurred_at DESC LIMIT $2`,
		identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("events for identity: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentEvents returns the most recent detection events, newest first.
func (s *PostgresStore) RecentEvents(ctx context.Context, limit int) ([]models.DetectionEvent, error) {
	limit = clampLimit(limit)
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, occurred_at, confidence, fingerprint, duplicate_hits, attributes
		 FROM detection_events ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Stats aggregates the activity counters.
func (s *PostgresStore) Stats(ctx context.Context) (*models.ActivityStats, error) {
	stats := &models.ActivityStats{}

	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM identities),
			(SELECT COUNT(*) FROM detection_events),
			(SELECT COALESCE(SUM(duplicate_hits), 0) FROM detection_events),
			(SELECT COUNT(*) FROM detection_events WHERE occurred_at > $1)`,
		time.Now().Add(-24*time.Hour),
	).Scan(&stats.TotalIdentities, &stats.TotalDetections, &stats.ExactDuplicates, &stats.DetectionsLast24h)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}

	var most models.MostSeen
	err = s.pool.QueryRow(ctx,
		`SELECT display_code, total_detections FROM identities ORDER BY total_detections DESC LIMIT 1`,
	).Scan(&most.DisplayCode, &most.TotalDetections)
	if err != nil {
		if err == pgx.ErrNoRows {
			return stats, nil
		}
		return nil, fmt.Errorf("most seen identity: %w", err)
	}
	stats.MostSeen = &most

	return stats, nil
}

// --- Scan helpers ---

func scanIdentity(rows pgx.Rows) (*models.Identity, error) {
	var identity models.Identity
	var vec pgvector.Vector
	var attrs []byte
	if err := rows.Scan(&identity.ID, &identity.DisplayCode, &vec, &identity.FirstSeen,
		&identity.LastSeen, &identity.TotalDetections, &identity.ConfidenceAvg, &attrs); err != nil {
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	identity.Embedding = vec.Slice()
	if err := json.Unmarshal(attrs, &identity.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	return &identity, nil
}

func scanEvents(rows pgx.Rows) ([]models.DetectionEvent, error) {
	var events []models.DetectionEvent
	for rows.Next() {
		var ev models.DetectionEvent
		var attrs []byte
		if err := rows.Scan(&ev.ID, &ev.IdentityID, &ev.OccurredAt, &ev.Confidence,
			&ev.Fingerprint, &ev.DuplicateHits, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(attrs, &ev.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
