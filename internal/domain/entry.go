package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryType is the Nightscout entry discriminator.
type EntryType string

const (
	EntryTypeSGV        EntryType = "sgv"
	EntryTypePumpStatus EntryType = "pump_status"
)

// ISOLayout matches JavaScript's Date.prototype.toISOString output.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Entry is a single record uploaded to Nightscout.
// The set of implementations is closed: PumpStatus, Reading and TrendReading.
type Entry interface {
	Kind() EntryType
	TimestampMs() int64
	isEntry()
}

// PumpStatus is the per-snapshot device status entry.
// Timestamp is copied verbatim from the snapshot's server update time.
type PumpStatus struct {
	Timestamp                        int64    // Unix ms, server time
	Device                           string   // "connect://<family>"
	ActiveInsulin                    float64  // units on board
	CalibStatus                      string   // e.g. LESS_THAN_TWELVE_HRS
	ConduitBatteryLevel              *int     // percent
	ConduitInRange                   *bool    // uploader in range of the cloud
	ConduitMedicalDeviceInRange      *bool    // uploader in range of the pump
	ConduitSensorInRange             *bool    // pump in range of the sensor
	MedicalDeviceBatteryLevelPercent *int     // pump battery percent
	ReservoirAmount                  *float64 // units left
	ReservoirLevelPercent            *int     // percent left
	SensorDurationHours              *int     // hours until sensor change
	SensorState                      string   // e.g. NORMAL
	TimeToNextCalibHours             *int     // hours until next calibration
}

// Reading is a sensor glucose value without rate-of-change data.
type Reading struct {
	Value     int   // mg/dL
	Timestamp int64 // Unix ms, absolute
}

// TrendReading is the newest reading of a batch carrying device trend data.
type TrendReading struct {
	Reading
	Direction Direction
	Trend     int
}

func (PumpStatus) Kind() EntryType   { return EntryTypePumpStatus }
func (Reading) Kind() EntryType      { return EntryTypeSGV }
func (TrendReading) Kind() EntryType { return EntryTypeSGV }

func (p PumpStatus) TimestampMs() int64   { return p.Timestamp }
func (r Reading) TimestampMs() int64      { return r.Timestamp }
func (t TrendReading) TimestampMs() int64 { return t.Timestamp }

func (PumpStatus) isEntry()   {}
func (Reading) isEntry()      {}
func (TrendReading) isEntry() {}

// DateString formats a Unix ms timestamp the way Nightscout expects.
func DateString(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(ISOLayout)
}

type pumpStatusWire struct {
	Type                             EntryType `json:"type"`
	Date                             int64     `json:"date"`
	DateString                       string    `json:"dateString"`
	Device                           string    `json:"device"`
	ActiveInsulin                    float64   `json:"activeInsulin"`
	CalibStatus                      string    `json:"calibStatus,omitempty"`
	ConduitBatteryLevel              *int      `json:"conduitBatteryLevel,omitempty"`
	ConduitInRange                   *bool     `json:"conduitInRange,omitempty"`
	ConduitMedicalDeviceInRange      *bool     `json:"conduitMedicalDeviceInRange,omitempty"`
	ConduitSensorInRange             *bool     `json:"conduitSensorInRange,omitempty"`
	MedicalDeviceBatteryLevelPercent *int      `json:"medicalDeviceBatteryLevelPercent,omitempty"`
	ReservoirAmount                  *float64  `json:"reservoirAmount,omitempty"`
	ReservoirLevelPercent            *int      `json:"reservoirLevelPercent,omitempty"`
	SensorDurationHours              *int      `json:"sensorDurationHours,omitempty"`
	SensorState                      string    `json:"sensorState,omitempty"`
	TimeToNextCalibHours             *int      `json:"timeToNextCalibHours,omitempty"`
}

type sgvWire struct {
	Type      EntryType `json:"type"`
	SGV       int       `json:"sgv"`
	Date      int64     `json:"date"`
	Direction Direction `json:"direction,omitempty"`
	Trend     *int      `json:"trend,omitempty"`
}

// MarshalJSON encodes the flat Nightscout pump_status record.
func (p PumpStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(pumpStatusWire{
		Type:                             EntryTypePumpStatus,
		Date:                             p.Timestamp,
		DateString:                       DateString(p.Timestamp),
		Device:                           p.Device,
		ActiveInsulin:                    p.ActiveInsulin,
		CalibStatus:                      p.CalibStatus,
		ConduitBatteryLevel:              p.ConduitBatteryLevel,
		ConduitInRange:                   p.ConduitInRange,
		ConduitMedicalDeviceInRange:      p.ConduitMedicalDeviceInRange,
		ConduitSensorInRange:             p.ConduitSensorInRange,
		MedicalDeviceBatteryLevelPercent: p.MedicalDeviceBatteryLevelPercent,
		ReservoirAmount:                  p.ReservoirAmount,
		ReservoirLevelPercent:            p.ReservoirLevelPercent,
		SensorDurationHours:              p.SensorDurationHours,
		SensorState:                      p.SensorState,
		TimeToNextCalibHours:             p.TimeToNextCalibHours,
	})
}

// MarshalJSON encodes the flat Nightscout sgv record without trend fields.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(sgvWire{Type: EntryTypeSGV, SGV: r.Value, Date: r.Timestamp})
}

// MarshalJSON encodes the flat Nightscout sgv record with direction and trend.
func (t TrendReading) MarshalJSON() ([]byte, error) {
	trend := t.Trend
	return json.Marshal(sgvWire{
		Type:      EntryTypeSGV,
		SGV:       t.Value,
		Date:      t.Timestamp,
		Direction: t.Direction,
		Trend:     &trend,
	})
}

// IsSGV reports whether e is a glucose reading of either variant.
func IsSGV(e Entry) bool {
	return e.Kind() == EntryTypeSGV
}

// DecodeEntry parses a flat Nightscout record produced by an Entry's MarshalJSON.
func DecodeEntry(data []byte) (Entry, error) {
	var head struct {
		Type EntryType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode entry type: %w", err)
	}

	switch head.Type {
	case EntryTypePumpStatus:
		var w pumpStatusWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode pump_status: %w", err)
		}
		return PumpStatus{
			Timestamp:                        w.Date,
			Device:                           w.Device,
			ActiveInsulin:                    w.ActiveInsulin,
			CalibStatus:                      w.CalibStatus,
			ConduitBatteryLevel:              w.ConduitBatteryLevel,
			ConduitInRange:                   w.ConduitInRange,
			ConduitMedicalDeviceInRange:      w.ConduitMedicalDeviceInRange,
			ConduitSensorInRange:             w.ConduitSensorInRange,
			MedicalDeviceBatteryLevelPercent: w.MedicalDeviceBatteryLevelPercent,
			ReservoirAmount:                  w.ReservoirAmount,
			ReservoirLevelPercent:            w.ReservoirLevelPercent,
			SensorDurationHours:              w.SensorDurationHours,
			SensorState:                      w.SensorState,
			TimeToNextCalibHours:             w.TimeToNextCalibHours,
		}, nil

	case EntryTypeSGV:
		var w sgvWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode sgv: %w", err)
		}
		r := Reading{Value: w.SGV, Timestamp: w.Date}
		if w.Trend == nil && w.Direction == "" {
			return r, nil
		}
		tr := TrendReading{Reading: r, Direction: w.Direction}
		if w.Trend != nil {
			tr.Trend = *w.Trend
		}
		return tr, nil
	}

	return nil, fmt.Errorf("unknown entry type %q", head.Type)
}
