package storage

import (
	"encoding/json"
	"fmt"

	"carelink-bridge/internal/domain"
)

// Row is the column layout shared by the SQL mirrors.
type Row struct {
	Type      string
	Date      int64
	SGV       *int    // nil for non-sgv entries
	Direction *string // set only for trend readings
	Trend     *int    // set only for trend readings
	Payload   []byte  // full Nightscout record
}

// ToRow flattens an entry into mirror columns.
func ToRow(e domain.Entry) (Row, error) {
	if e == nil {
		return Row{}, ErrInvalidInput
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return Row{}, fmt.Errorf("encode entry: %w", err)
	}

	row := Row{
		Type:    string(e.Kind()),
		Date:    e.TimestampMs(),
		Payload: payload,
	}

	switch v := e.(type) {
	case domain.Reading:
		row.SGV = &v.Value
	case domain.TrendReading:
		dir := string(v.Direction)
		row.SGV = &v.Value
		row.Direction = &dir
		row.Trend = &v.Trend
	}

	return row, nil
}

// FromRow restores the entry stored in a row's payload.
func FromRow(r Row) (domain.Entry, error) {
	e, err := domain.DecodeEntry(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s at %d: %w", r.Type, r.Date, err)
	}
	return e, nil
}
