package model

import "time"

// Position is a geodetic fix taken from the required position columns.
type Position struct {
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	AltitudeFt   float64 `json:"altitude_ft"`
}

// Record is one telemetry sample. Every record produced by a validation pass
// shares the same field schema: a field that was absent or unreadable in the
// source row is present in Fields as a redacted Value, never missing.
type Record struct {
	Timestamp time.Time        `json:"timestamp"`
	Position  Position         `json:"position"`
	Fields    map[string]Value `json:"fields"`
}
