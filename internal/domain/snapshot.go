package domain

// Snapshot is the device-status payload returned by the CareLink "last24hours" call.
// Only the fields the bridge reads are decoded. Optional status fields are pointers so
// that an absent value can be told apart from a zero value.
type Snapshot struct {
	// Absolute server time (Unix ms) of the last device upload. Trustworthy.
	LastMedicalDeviceDataUpdateServerTime int64 `json:"lastMedicalDeviceDataUpdateServerTime"`
	CurrentServerTime                     int64 `json:"currentServerTime"`

	MedicalDeviceFamily              string         `json:"medicalDeviceFamily"`
	ActiveInsulin                    *ActiveInsulin `json:"activeInsulin"`
	ConduitBatteryLevel              *int           `json:"conduitBatteryLevel"`
	ConduitInRange                   *bool          `json:"conduitInRange"`
	ConduitMedicalDeviceInRange      *bool          `json:"conduitMedicalDeviceInRange"`
	ConduitSensorInRange             *bool          `json:"conduitSensorInRange"`
	MedicalDeviceBatteryLevelPercent *int           `json:"medicalDeviceBatteryLevelPercent"`
	ReservoirAmount                  *float64       `json:"reservoirAmount"`
	ReservoirLevelPercent            *int           `json:"reservoirLevelPercent"`
	SensorDurationHours              *int           `json:"sensorDurationHours"`
	SensorState                      string         `json:"sensorState"`
	TimeToNextCalibHours             *int           `json:"timeToNextCalibHours"`
	CalibStatus                      string         `json:"calibStatus"`

	// Device-local reading history, oldest first. SG == 0 marks a gap.
	SGs []SensorGlucose `json:"sgs"`

	// Current-reading slot and its device trend code. Either may be absent.
	LastSG      *SensorGlucose `json:"lastSG"`
	LastSGTrend string         `json:"lastSGTrend"`
}

// ActiveInsulin is the insulin-on-board record.
type ActiveInsulin struct {
	Amount   float64 `json:"amount"`
	Datetime string  `json:"datetime,omitempty"`
}

// SensorGlucose is a single device-local sensor reading.
type SensorGlucose struct {
	SG       int    `json:"sg"`
	Datetime string `json:"datetime"` // device-local, no zone: "Oct 19, 2015 08:15:00"
	Kind     string `json:"kind,omitempty"`
	Version  int    `json:"version,omitempty"`
}
