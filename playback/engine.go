// Package playback implements a deterministic cursor over a telemetry
// store. The engine performs no blocking and owns no clock: advancement is
// a pure function of the current state and an externally supplied elapsed
// delta, so a timer, an HTTP client, and a test harness all drive it the
// same way.
package playback

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/flightdata-analyzer/model"
	"github.com/signalsfoundry/flightdata-analyzer/timeseries"
)

// Speed multiplier bounds applied by SetSpeed.
const (
	DefaultMinSpeed = 1.0
	DefaultMaxSpeed = 500.0
)

// ErrInvalidSpeed reports a non-positive or non-finite speed multiplier.
// The engine keeps its previous speed when returning it.
var ErrInvalidSpeed = errors.New("invalid speed multiplier")

// Status is the engine's lifecycle state.
type Status int

const (
	// Stopped is the initial and terminal state.
	Stopped Status = iota
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "stopped":
		*s = Stopped
	case "playing":
		*s = Playing
	case "paused":
		*s = Paused
	default:
		return fmt.Errorf("unknown playback status %q", text)
	}
	return nil
}

// State is the complete playback position. It is a plain value: two
// engines with equal State and equal stores behave identically.
type State struct {
	CurrentTime time.Time `json:"current_time"`
	Status      Status    `json:"status"`
	Speed       float64   `json:"speed"`
	Cursor      int       `json:"cursor"`
}

// Snapshot pairs the playback state with the record it resolves to, the
// most recent sample at or before CurrentTime. Values are never
// interpolated between samples. Record is nil for an empty mission.
type Snapshot struct {
	State  State         `json:"state"`
	Record *model.Record `json:"record,omitempty"`
}

// Engine advances a cursor through one mission. Methods are not safe for
// concurrent use; the owning session serializes access.
type Engine struct {
	store    *timeseries.Store
	minSpeed float64
	maxSpeed float64
	st       State
}

// Option configures an Engine.
type Option func(*Engine)

// WithSpeedBounds overrides the clamp range applied by SetSpeed.
func WithSpeedBounds(min, max float64) Option {
	return func(e *Engine) {
		if min > 0 && max >= min {
			e.minSpeed, e.maxSpeed = min, max
		}
	}
}

// NewEngine returns a stopped engine positioned at the start of the store.
func NewEngine(store *timeseries.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		minSpeed: DefaultMinSpeed,
		maxSpeed: DefaultMaxSpeed,
		st:       State{Status: Stopped, Speed: 1},
	}
	for _, opt := range opts {
		opt(e)
	}
	if min, _, ok := store.TimeRange(); ok {
		e.st.CurrentTime = min
	}
	return e
}

// State returns a copy of the current playback state.
func (e *Engine) State() State { return e.st }

// Play starts or resumes playback. From Stopped the cursor rewinds to the
// start of the mission; from Paused it resumes in place.
func (e *Engine) Play() State {
	switch e.st.Status {
	case Stopped:
		e.st.Status = Playing
		e.rewind()
	case Paused:
		e.st.Status = Playing
	}
	return e.st
}

// Pause suspends playback. It is a no-op unless the engine is Playing.
func (e *Engine) Pause() State {
	if e.st.Status == Playing {
		e.st.Status = Paused
	}
	return e.st
}

// Stop halts playback and resets the cursor to the start of the mission.
func (e *Engine) Stop() State {
	e.st.Status = Stopped
	e.rewind()
	return e.st
}

// Seek moves the cursor to t, clamped to the mission's time range. The
// lifecycle state is unchanged. Seeking an empty mission is a no-op.
func (e *Engine) Seek(t time.Time) State {
	min, max, ok := e.store.TimeRange()
	if !ok {
		return e.st
	}
	if t.Before(min) {
		t = min
	}
	if t.After(max) {
		t = max
	}
	e.st.CurrentTime = t
	e.st.Cursor, _ = e.store.NearestIndex(t)
	return e.st
}

// SetSpeed updates the multiplier applied to advancement deltas. The value
// must be positive and finite; it is then clamped to the configured bounds
// and takes effect on the next Advance. On error the previous speed stays
// in effect.
func (e *Engine) SetSpeed(multiplier float64) error {
	if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, multiplier)
	}
	if multiplier < e.minSpeed {
		multiplier = e.minSpeed
	}
	if multiplier > e.maxSpeed {
		multiplier = e.maxSpeed
	}
	e.st.Speed = multiplier
	return nil
}

// Advance moves simulated time forward by delta scaled with the current
// speed. It applies only while Playing; other states, non-positive deltas,
// and empty missions leave the state unchanged except that Playing over an
// empty mission stops. Reaching or passing the end of the mission clamps
// to the final timestamp and stops without resetting, so the last snapshot
// remains observable.
func (e *Engine) Advance(delta time.Duration) State {
	if e.st.Status != Playing || delta <= 0 {
		return e.st
	}
	_, max, ok := e.store.TimeRange()
	if !ok {
		e.st.Status = Stopped
		return e.st
	}

	next := e.st.CurrentTime.Add(time.Duration(float64(delta) * e.st.Speed))
	if !next.Before(max) {
		next = max
		e.st.Status = Stopped
	}
	e.st.CurrentTime = next
	e.st.Cursor, _ = e.store.NearestIndex(next)
	return e.st
}

// Snapshot resolves the current state to its record.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{State: e.st}
	if rec, ok := e.store.RecordAt(e.st.Cursor); ok {
		snap.Record = &rec
	}
	return snap
}

func (e *Engine) rewind() {
	e.st.Cursor = 0
	if min, _, ok := e.store.TimeRange(); ok {
		e.st.CurrentTime = min
	} else {
		e.st.CurrentTime = time.Time{}
	}
}
