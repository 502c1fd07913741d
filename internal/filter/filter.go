// Package filter suppresses glucose readings the sync target has already received.
//
// Nightscout upserts entries by timestamp, and CareLink only provides trend data for
// the newest reading. Resending an older reading would replace its trend-bearing copy
// with a trend-less one, so readings at or below the high-water-mark are dropped.
package filter

import (
	"math"

	"carelink-bridge/internal/domain"
)

// Mark is the high-water-mark of glucose reading timestamps seen so far.
// It is owned by a single runner and is not safe for concurrent use.
type Mark struct {
	lastSgvDate int64
}

// NewMark returns a mark below every representable timestamp.
func NewMark() *Mark {
	return &Mark{lastSgvDate: math.MinInt64}
}

// LastSgvDate returns the largest reading timestamp observed.
func (m *Mark) LastSgvDate() int64 {
	return m.lastSgvDate
}

// Options tunes the selection rule.
type Options struct {
	// ResendLatestTrend lets a trend-bearing reading whose timestamp equals the mark
	// through again, so a trend that arrives after a trend-less copy was sent still
	// reaches the target.
	ResendLatestTrend bool
}

// Filter selects the entries of one cycle and advances the mark.
//
// Non-sgv entries always pass. A reading passes when its timestamp is strictly greater
// than the mark. After selection the mark becomes the maximum over every reading in
// entries, including the ones that were dropped.
func Filter(mark *Mark, entries []domain.Entry, opts Options) []domain.Entry {
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if keep(mark, e, opts) {
			out = append(out, e)
		}
	}

	for _, e := range entries {
		if domain.IsSGV(e) && e.TimestampMs() > mark.lastSgvDate {
			mark.lastSgvDate = e.TimestampMs()
		}
	}

	return out
}

func keep(mark *Mark, e domain.Entry, opts Options) bool {
	if !domain.IsSGV(e) {
		return true
	}
	ts := e.TimestampMs()
	if ts > mark.lastSgvDate {
		return true
	}
	if _, isTrend := e.(domain.TrendReading); isTrend && opts.ResendLatestTrend {
		return ts == mark.lastSgvDate
	}
	return false
}
