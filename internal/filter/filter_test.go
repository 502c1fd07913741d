package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink-bridge/internal/domain"
)

func status(ts int64) domain.Entry {
	return domain.PumpStatus{Timestamp: ts, Device: "connect://paradigm"}
}

func sgv(value int, ts int64) domain.Entry {
	return domain.Reading{Value: value, Timestamp: ts}
}

func trendSgv(value int, ts int64) domain.Entry {
	return domain.TrendReading{
		Reading:   domain.Reading{Value: value, Timestamp: ts},
		Direction: domain.DirectionSingleDown,
		Trend:     6,
	}
}

func TestNewMark(t *testing.T) {
	assert.Equal(t, int64(math.MinInt64), NewMark().LastSgvDate())
}

func TestFilter_FirstCyclePassesEverything(t *testing.T) {
	mark := NewMark()
	batch := []domain.Entry{status(5000), sgv(100, 1000), sgv(101, 2000), trendSgv(102, 3000)}

	out := Filter(mark, batch, Options{})

	assert.Equal(t, batch, out)
	assert.Equal(t, int64(3000), mark.LastSgvDate())
}

func TestFilter_SameBatchTwice(t *testing.T) {
	mark := NewMark()
	batch := []domain.Entry{status(5000), sgv(100, 1000), trendSgv(102, 3000)}

	Filter(mark, batch, Options{})
	out := Filter(mark, batch, Options{})

	require.Len(t, out, 1)
	assert.Equal(t, domain.EntryTypePumpStatus, out[0].Kind())
	assert.Equal(t, int64(3000), mark.LastSgvDate())
}

func TestFilter_MarkNeverDecreases(t *testing.T) {
	mark := NewMark()
	Filter(mark, []domain.Entry{sgv(100, 9000)}, Options{})

	out := Filter(mark, []domain.Entry{status(1), sgv(90, 4000), sgv(91, 5000)}, Options{})

	assert.Len(t, out, 1)
	assert.Equal(t, int64(9000), mark.LastSgvDate())
}

func TestFilter_OnlyNewerReadingsPass(t *testing.T) {
	mark := NewMark()
	Filter(mark, []domain.Entry{sgv(100, 1000), sgv(101, 2000)}, Options{})

	out := Filter(mark, []domain.Entry{status(7000), sgv(101, 2000), sgv(102, 3000), trendSgv(103, 4000)}, Options{})

	require.Len(t, out, 3)
	assert.Equal(t, domain.EntryTypePumpStatus, out[0].Kind())
	assert.Equal(t, int64(3000), out[1].TimestampMs())
	assert.Equal(t, int64(4000), out[2].TimestampMs())
	assert.Equal(t, int64(4000), mark.LastSgvDate())
}

func TestFilter_StatusNeverSuppressed(t *testing.T) {
	mark := NewMark()
	for i := 0; i < 5; i++ {
		out := Filter(mark, []domain.Entry{status(1000), sgv(100, 1000)}, Options{})
		require.NotEmpty(t, out, "cycle %d", i)
		assert.Equal(t, domain.EntryTypePumpStatus, out[0].Kind(), "cycle %d", i)
	}
}

func TestFilter_TrendArrivingLate(t *testing.T) {
	// First cycle sees the newest reading without trend, the second cycle sees it with trend.
	first := []domain.Entry{status(1), sgv(100, 1000), sgv(101, 2000)}
	second := []domain.Entry{status(2), sgv(100, 1000), trendSgv(101, 2000)}

	t.Run("default rule drops it", func(t *testing.T) {
		mark := NewMark()
		Filter(mark, first, Options{})
		out := Filter(mark, second, Options{})
		require.Len(t, out, 1)
		assert.Equal(t, domain.EntryTypePumpStatus, out[0].Kind())
	})

	t.Run("resend latest trend", func(t *testing.T) {
		mark := NewMark()
		opts := Options{ResendLatestTrend: true}
		Filter(mark, first, opts)
		out := Filter(mark, second, opts)
		require.Len(t, out, 2)
		_, isTrend := out[1].(domain.TrendReading)
		assert.True(t, isTrend)
		assert.Equal(t, int64(2000), mark.LastSgvDate())
	})

	t.Run("stale trend is not resent", func(t *testing.T) {
		mark := NewMark()
		opts := Options{ResendLatestTrend: true}
		Filter(mark, []domain.Entry{sgv(100, 5000)}, opts)
		out := Filter(mark, []domain.Entry{trendSgv(101, 2000)}, opts)
		assert.Empty(t, out)
	})
}

func TestFilter_EmptyBatch(t *testing.T) {
	mark := NewMark()
	out := Filter(mark, nil, Options{})
	assert.Empty(t, out)
	assert.Equal(t, int64(math.MinInt64), mark.LastSgvDate())
}
