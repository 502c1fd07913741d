package transform

import (
	"fmt"
	"time"

	"carelink-bridge/internal/domain"
)

// DeviceTimeLayout is the CareLink device-local datetime layout. It carries no zone.
const DeviceTimeLayout = "Jan 2, 2006 15:04:05"

// OffsetGranularity is the resolution of real-world UTC offsets.
const OffsetGranularity = 15 * time.Minute

// MaxOffset bounds the magnitude of a plausible offset. Real zones span UTC-12 to UTC+14.
const MaxOffset = 14 * time.Hour

// Offset is the difference between absolute time and device-local time read as UTC.
type Offset time.Duration

// ParseDeviceTime parses a device-local datetime as if it were UTC.
func ParseDeviceTime(s string) (time.Time, error) {
	t, err := time.Parse(DeviceTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse device time %q: %w", s, err)
	}
	return t, nil
}

// GuessOffset correlates the server time of the newest reading with its device-local time.
// The difference is rounded to the nearest quarter hour; whatever remains is upload lag.
// The result is only meaningful when it lies within MaxOffset.
func GuessOffset(serverMs int64, anchor time.Time) Offset {
	return Offset(time.Duration(roundedOffsetMs(serverMs, anchor)) * time.Millisecond)
}

// roundedOffsetMs rounds the server/device difference to the quarter hour in int64 ms,
// halfway values away from zero. It cannot overflow for any parseable device time.
func roundedOffsetMs(serverMs int64, anchor time.Time) int64 {
	step := OffsetGranularity.Milliseconds()
	diff := serverMs - anchor.UnixMilli()
	q, r := diff/step, diff%step
	switch {
	case r > 0 && 2*r >= step:
		q++
	case r < 0 && -2*r >= step:
		q--
	}
	return q * step
}

// Apply converts a device-local time into absolute Unix ms.
func (o Offset) Apply(local time.Time) int64 {
	return local.Add(time.Duration(o)).UnixMilli()
}

// String renders the device zone the way a timestamp suffix would, e.g. "-0700".
func (o Offset) String() string {
	// The device zone is the negation of the correction applied to it.
	d := -time.Duration(o)
	sign := '+'
	if d < 0 {
		sign = '-'
		d = -d
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%c%02d%02d", sign, h, m)
}

// reconcile derives the offset of a snapshot from the server update time and the
// device-local time of the anchor reading.
func reconcile(serverMs int64, anchor *localReading) (Offset, error) {
	if anchor == nil {
		return 0, &domain.ReconciliationError{Reason: "no reading to correlate with server time"}
	}
	if serverMs <= 0 {
		return 0, &domain.ReconciliationError{Reason: "missing server update time"}
	}
	ms := roundedOffsetMs(serverMs, anchor.local)
	if ms > MaxOffset.Milliseconds() || ms < -MaxOffset.Milliseconds() {
		return 0, &domain.ReconciliationError{
			Reason: fmt.Sprintf("device clock is %s away from server time", formatGap(ms)),
		}
	}
	return Offset(time.Duration(ms) * time.Millisecond), nil
}

// formatGap renders an offset that may not fit in a time.Duration.
func formatGap(ms int64) string {
	hours := ms / time.Hour.Milliseconds()
	if hours < 0 {
		hours = -hours
	}
	return fmt.Sprintf("%dh", hours)
}
