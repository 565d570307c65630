package model

import (
	"bytes"
	"encoding/json"
)

// RedactedSentinel is the numeric marker used by the file format to flag a
// cell as "redacted/unavailable". It only has meaning at the I/O boundary;
// inside the system a redacted cell is Value{Valid: false}.
const RedactedSentinel = -999.0

// Value is a single numeric telemetry cell: either a real measurement or a
// redacted placeholder. The zero value is redacted. A redacted cell is
// distinct from a true zero and must never take part in arithmetic.
type Value struct {
	Float64 float64
	Valid   bool
}

// Measured wraps a real measurement.
func Measured(f float64) Value { return Value{Float64: f, Valid: true} }

// Redacted returns the no-data placeholder.
func Redacted() Value { return Value{} }

var jsonNull = []byte("null")

// MarshalJSON encodes redacted cells as null so consumers can never mistake
// the sentinel for a measurement.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return jsonNull, nil
	}
	return json.Marshal(v.Float64)
}

// UnmarshalJSON accepts null for a redacted cell and any JSON number for a
// measurement. A literal sentinel value is folded back into the redacted case.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f == RedactedSentinel {
		*v = Value{}
		return nil
	}
	*v = Value{Float64: f, Valid: true}
	return nil
}
