// Package transform turns CareLink snapshots into Nightscout entries.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"carelink-bridge/internal/domain"
)

// DefaultLimit is the number of most recent readings emitted per snapshot.
const DefaultLimit = 24

// localReading is a history reading before its timestamp is reconciled.
type localReading struct {
	value int
	local time.Time
}

// Transform builds the batch for one snapshot: a pump status entry followed by up to
// limit most recent readings, oldest first. The snapshot is not modified.
func Transform(s *domain.Snapshot, limit int) (*domain.Batch, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := validate(s); err != nil {
		return nil, err
	}

	history, err := historyReadings(s.SGs)
	if err != nil {
		return nil, err
	}

	current, err := currentReading(s.LastSG, history)
	if err != nil {
		return nil, err
	}

	readings := history
	anchor := newest(history)
	if current != nil {
		readings = append(readings, *current)
		anchor = current
	}

	offset, err := reconcile(s.LastMedicalDeviceDataUpdateServerTime, anchor)
	if err != nil {
		return nil, err
	}

	if len(readings) > limit {
		readings = readings[len(readings)-limit:]
	}

	batch := &domain.Batch{
		Status:   pumpStatus(s),
		Readings: make([]domain.Reading, 0, len(readings)),
	}
	for _, r := range readings {
		batch.Readings = append(batch.Readings, domain.Reading{
			Value:     r.value,
			Timestamp: offset.Apply(r.local),
		})
	}

	// Only a distinct current slot has a trend code that belongs to the newest reading.
	if current != nil {
		if m := domain.LookupTrend(s.LastSGTrend); !m.Neutral() {
			last := batch.Readings[len(batch.Readings)-1]
			batch.Readings = batch.Readings[:len(batch.Readings)-1]
			batch.Latest = &domain.TrendReading{
				Reading:   last,
				Direction: m.Direction,
				Trend:     m.Trend,
			}
		}
	}

	return batch, nil
}

// validate checks the fields a pump status entry cannot be built without.
func validate(s *domain.Snapshot) error {
	if s == nil {
		return &domain.SnapshotError{Field: "snapshot", Reason: "missing"}
	}
	if s.LastMedicalDeviceDataUpdateServerTime <= 0 {
		return &domain.SnapshotError{Field: "lastMedicalDeviceDataUpdateServerTime", Reason: "missing"}
	}
	if s.MedicalDeviceFamily == "" {
		return &domain.SnapshotError{Field: "medicalDeviceFamily", Reason: "missing"}
	}
	if s.ActiveInsulin == nil {
		return &domain.SnapshotError{Field: "activeInsulin", Reason: "missing"}
	}
	if s.SGs == nil {
		return &domain.SnapshotError{Field: "sgs", Reason: "missing"}
	}
	return nil
}

// historyReadings parses non-gap history entries into a new slice sorted by device time.
// Entries sharing a device time collapse to the later one in input order.
func historyReadings(sgs []domain.SensorGlucose) ([]localReading, error) {
	out := make([]localReading, 0, len(sgs))
	for i, sg := range sgs {
		if sg.SG <= 0 {
			continue
		}
		t, err := ParseDeviceTime(sg.Datetime)
		if err != nil {
			return nil, &domain.SnapshotError{Field: fmt.Sprintf("sgs[%d].datetime", i), Reason: err.Error()}
		}
		out = append(out, localReading{value: sg.SG, local: t})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].local.Before(out[j].local)
	})

	deduped := out[:0]
	for _, r := range out {
		if n := len(deduped); n > 0 && deduped[n-1].local.Equal(r.local) {
			deduped[n-1] = r
			continue
		}
		deduped = append(deduped, r)
	}
	return deduped, nil
}

// currentReading returns the current-reading slot when it is strictly newer than the
// history, and nil when it is absent, empty, or already part of the history.
func currentReading(last *domain.SensorGlucose, history []localReading) (*localReading, error) {
	if last == nil || last.SG <= 0 || last.Datetime == "" {
		return nil, nil
	}
	t, err := ParseDeviceTime(last.Datetime)
	if err != nil {
		return nil, &domain.SnapshotError{Field: "lastSG.datetime", Reason: err.Error()}
	}
	if h := newest(history); h != nil && !t.After(h.local) {
		return nil, nil
	}
	return &localReading{value: last.SG, local: t}, nil
}

func newest(readings []localReading) *localReading {
	if len(readings) == 0 {
		return nil
	}
	return &readings[len(readings)-1]
}

func pumpStatus(s *domain.Snapshot) domain.PumpStatus {
	return domain.PumpStatus{
		Timestamp:                        s.LastMedicalDeviceDataUpdateServerTime,
		Device:                           "connect://" + strings.ToLower(s.MedicalDeviceFamily),
		ActiveInsulin:                    s.ActiveInsulin.Amount,
		CalibStatus:                      s.CalibStatus,
		ConduitBatteryLevel:              copyPtr(s.ConduitBatteryLevel),
		ConduitInRange:                   copyPtr(s.ConduitInRange),
		ConduitMedicalDeviceInRange:      copyPtr(s.ConduitMedicalDeviceInRange),
		ConduitSensorInRange:             copyPtr(s.ConduitSensorInRange),
		MedicalDeviceBatteryLevelPercent: copyPtr(s.MedicalDeviceBatteryLevelPercent),
		ReservoirAmount:                  copyPtr(s.ReservoirAmount),
		ReservoirLevelPercent:            copyPtr(s.ReservoirLevelPercent),
		SensorDurationHours:              copyPtr(s.SensorDurationHours),
		SensorState:                      s.SensorState,
		TimeToNextCalibHours:             copyPtr(s.TimeToNextCalibHours),
	}
}

// copyPtr keeps entries from aliasing snapshot memory.
func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
