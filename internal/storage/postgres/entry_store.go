package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"carelink-bridge/internal/domain"
	"carelink-bridge/internal/storage"
)

// EntryStore implements storage.EntryStore using PostgreSQL.
type EntryStore struct {
	pool *Pool
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore(pool *Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

const upsertEntryQuery = `
	INSERT INTO entries (type, date, sgv, direction, trend, payload, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (type, date) DO UPDATE SET
		sgv = EXCLUDED.sgv,
		direction = EXCLUDED.direction,
		trend = EXCLUDED.trend,
		payload = EXCLUDED.payload,
		updated_at = EXCLUDED.updated_at
`

// Upsert writes entries in one transaction, replacing rows by (type, date).
func (s *EntryStore) Upsert(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]storage.Row, 0, len(entries))
	for _, e := range entries {
		row, err := storage.ToRow(e)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rows {
		_, err := tx.Exec(ctx, upsertEntryQuery,
			r.Type,
			r.Date,
			r.SGV,
			r.Direction,
			r.Trend,
			r.Payload,
		)
		if err != nil {
			return fmt.Errorf("upsert %s entry at %d: %w", r.Type, r.Date, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves entries within [start, end] (inclusive).
func (s *EntryStore) GetByTimeRange(ctx context.Context, start, end int64) ([]domain.Entry, error) {
	query := `
		SELECT type, date, sgv, direction, trend, payload
		FROM entries
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC, type ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get entries by time range: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetLatestSGV retrieves the newest glucose reading.
func (s *EntryStore) GetLatestSGV(ctx context.Context) (domain.Entry, error) {
	query := `
		SELECT type, date, sgv, direction, trend, payload
		FROM entries
		WHERE type = $1
		ORDER BY date DESC
		LIMIT 1
	`

	var r storage.Row
	err := s.pool.QueryRow(ctx, query, string(domain.EntryTypeSGV)).Scan(
		&r.Type, &r.Date, &r.SGV, &r.Direction, &r.Trend, &r.Payload,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest sgv: %w", err)
	}

	return storage.FromRow(r)
}

func scanEntries(rows pgx.Rows) ([]domain.Entry, error) {
	result := make([]domain.Entry, 0)
	for rows.Next() {
		var r storage.Row
		if err := rows.Scan(&r.Type, &r.Date, &r.SGV, &r.Direction, &r.Trend, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e, err := storage.FromRow(r)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return result, nil
}
