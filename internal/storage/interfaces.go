package storage

import (
	"context"

	"carelink-bridge/internal/domain"
)

// EntryStore mirrors uploaded entries with Nightscout's write semantics:
// an entry replaces any stored entry with the same (type, date).
type EntryStore interface {
	// Upsert writes entries atomically, replacing existing rows by (type, date).
	Upsert(ctx context.Context, entries []domain.Entry) error

	// GetByTimeRange retrieves entries with date within [start, end] (inclusive),
	// ordered by date ASC then type ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]domain.Entry, error)

	// GetLatestSGV retrieves the newest glucose reading. Returns ErrNotFound if none.
	GetLatestSGV(ctx context.Context) (domain.Entry, error)
}
