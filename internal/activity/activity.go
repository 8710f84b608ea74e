package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/facereg/internal/models"
)

// Reader provides the queryable detection history. PostgresStore implements
// it and owns limit clamping; the gallery and fingerprint index are not
// involved in reads.
type Reader interface {
	RecentEvents(ctx context.Context, limit int) ([]models.DetectionEvent, error)
	EventsForIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]models.DetectionEvent, error)
	Stats(ctx context.Context) (*models.ActivityStats, error)
}

// Log answers the activity queries: recent detections, per-identity history
// and aggregate stats.
type Log struct {
	reader Reader
}

func NewLog(reader Reader) *Log {
	return &Log{reader: reader}
}

// Recent returns the latest detection events, newest first. A zero limit
// selects the reader's default.
func (l *Log) Recent(ctx context.Context, limit int) ([]models.DetectionEvent, error) {
	events, err := l.reader.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return events, nil
}

// ForIdentity returns one identity's detection history, newest first.
func (l *Log) ForIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]models.DetectionEvent, error) {
	events, err := l.reader.EventsForIdentity(ctx, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("events for identity %s: %w", identityID, err)
	}
	return events, nil
}

// Stats returns aggregate counters over the whole detection history.
func (l *Log) Stats(ctx context.Context) (*models.ActivityStats, error) {
	stats, err := l.reader.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	return stats, nil
}
