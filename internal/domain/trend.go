package domain

// Direction is the Nightscout trend arrow name.
type Direction string

const (
	DirectionNone       Direction = "NONE"
	DirectionTripleUp   Direction = "TripleUp"
	DirectionDoubleUp   Direction = "DoubleUp"
	DirectionSingleUp   Direction = "SingleUp"
	DirectionSingleDown Direction = "SingleDown"
	DirectionDoubleDown Direction = "DoubleDown"
	DirectionTripleDown Direction = "TripleDown"
)

// TrendMapping maps a CareLink trend code to a Nightscout direction and trend number.
type TrendMapping struct {
	Code      string
	Direction Direction
	Trend     int
}

// Neutral reports whether the mapping carries no rate-of-change information.
func (m TrendMapping) Neutral() bool {
	return m.Direction == DirectionNone
}

// TrendTable is the fixed CareLink → Nightscout trend mapping, ordered rising to falling.
var TrendTable = []TrendMapping{
	{Code: "NONE", Direction: DirectionNone, Trend: 0},
	{Code: "UP_TRIPLE", Direction: DirectionTripleUp, Trend: 1},
	{Code: "UP_DOUBLE", Direction: DirectionDoubleUp, Trend: 1},
	{Code: "UP", Direction: DirectionSingleUp, Trend: 2},
	{Code: "DOWN", Direction: DirectionSingleDown, Trend: 6},
	{Code: "DOWN_DOUBLE", Direction: DirectionDoubleDown, Trend: 7},
	{Code: "DOWN_TRIPLE", Direction: DirectionTripleDown, Trend: 7},
}

// LookupTrend returns the mapping for a device trend code.
// Unknown and empty codes resolve to the neutral NONE mapping.
func LookupTrend(code string) TrendMapping {
	for _, m := range TrendTable {
		if m.Code == code {
			return m
		}
	}
	return TrendTable[0]
}
