package clickhouse

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"carelink-bridge/internal/domain"
	"carelink-bridge/internal/storage"
)

// EntryStore implements storage.EntryStore using ClickHouse.
// The table is a ReplacingMergeTree keyed by (type, date); reads use FINAL so
// the newest version of each entry wins, matching upsert semantics.
type EntryStore struct {
	conn *Conn
	seq  atomic.Uint64
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore(conn *Conn) *EntryStore {
	s := &EntryStore{conn: conn}
	s.seq.Store(uint64(time.Now().UnixNano()))
	return s
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

// Upsert appends entries as one batch with a version above every earlier write.
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

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO entries (type, date, sgv, direction, trend, payload, version)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := s.seq.Add(1)
	for _, r := range rows {
		err = batch.Append(
			r.Type, r.Date, toInt32Ptr(r.SGV), r.Direction, toInt32Ptr(r.Trend),
			string(r.Payload), version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves entries within [start, end] (inclusive).
func (s *EntryStore) GetByTimeRange(ctx context.Context, start, end int64) ([]domain.Entry, error) {
	query := `
		SELECT type, date, sgv, direction, trend, payload
		FROM entries FINAL
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, type ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetLatestSGV retrieves the newest glucose reading.
func (s *EntryStore) GetLatestSGV(ctx context.Context) (domain.Entry, error) {
	query := `
		SELECT type, date, sgv, direction, trend, payload
		FROM entries FINAL
		WHERE type = ?
		ORDER BY date DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, string(domain.EntryTypeSGV))
	if err != nil {
		return nil, fmt.Errorf("query latest sgv: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, storage.ErrNotFound
	}
	return entries[0], nil
}

func scanEntries(rows driver.Rows) ([]domain.Entry, error) {
	result := make([]domain.Entry, 0)
	for rows.Next() {
		var (
			r         storage.Row
			sgv       *int32
			trend     *int32
			direction *string
			payload   string
		)
		if err := rows.Scan(&r.Type, &r.Date, &sgv, &direction, &trend, &payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		r.SGV = fromInt32Ptr(sgv)
		r.Trend = fromInt32Ptr(trend)
		r.Direction = direction
		r.Payload = []byte(payload)

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

func toInt32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func fromInt32Ptr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
