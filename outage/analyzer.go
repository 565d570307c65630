// Package outage detects communication outage intervals in loaded
// telemetry. A link is in outage at a sample when its margin is below the
// requested threshold or the margin cell was redacted at the source.
// Intervals are derived on demand from the immutable store, so a threshold
// change is simply a recompute with the new value.
package outage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/flightdata-analyzer/model"
	"github.com/signalsfoundry/flightdata-analyzer/schema"
	"github.com/signalsfoundry/flightdata-analyzer/timeseries"
)

var (
	// ErrInvalidThreshold reports a threshold that is negative or not a
	// finite number. The caller's previous threshold stays in effect.
	ErrInvalidThreshold = errors.New("invalid outage threshold")

	// ErrUnknownLink reports a link ID absent from the mission schema.
	ErrUnknownLink = errors.New("unknown link")

	// ErrNoSamples reports a query against a zero-length mission.
	ErrNoSamples = errors.New("no samples loaded")
)

// Interval is one contiguous run of in-outage samples for a link.
// StartTime is the first sample of the run and EndTime the last. An
// interval still in progress at the end of the mission has a nil EndTime.
type Interval struct {
	LinkID    string     `json:"link_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// Open reports whether the interval extends past the end of the data.
func (iv Interval) Open() bool { return iv.EndTime == nil }

// Stats summarizes the outage intervals of one link at one threshold.
// Open intervals are measured up to the final mission timestamp.
type Stats struct {
	LinkID    string
	Count     int
	OpenEnded bool
	Total     time.Duration
	Longest   time.Duration
}

func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		LinkID         string  `json:"link_id"`
		Count          int     `json:"count"`
		OpenEnded      bool    `json:"open_ended"`
		TotalSeconds   float64 `json:"total_seconds"`
		LongestSeconds float64 `json:"longest_seconds"`
	}{s.LinkID, s.Count, s.OpenEnded, s.Total.Seconds(), s.Longest.Seconds()})
}

// Status is the instantaneous condition of a link at a resolved sample.
type Status struct {
	LinkID   string    `json:"link_id"`
	Time     time.Time `json:"time"`
	MarginDB *float64  `json:"margin_db"`
	Redacted bool      `json:"redacted"`
	InOutage bool      `json:"in_outage"`
}

// Analyzer computes outage intervals against a fixed store and schema.
// It carries no threshold state: every call receives the threshold
// explicitly, so identical inputs always produce identical output.
type Analyzer struct {
	store *timeseries.Store
	reg   *schema.Registry
}

func NewAnalyzer(store *timeseries.Store, reg *schema.Registry) *Analyzer {
	return &Analyzer{store: store, reg: reg}
}

// ComputeOutages scans the link's margin series and returns its outage
// intervals in time order. Contiguous in-outage samples merge into one
// interval. A run that reaches the final sample is reported open unless
// the mission holds a single sample, in which case the interval closes
// on that sample with zero duration. An empty mission yields no intervals.
func (a *Analyzer) ComputeOutages(linkID string, thresholdDB float64) ([]Interval, error) {
	if err := ValidateThreshold(thresholdDB); err != nil {
		return nil, err
	}
	link, ok := a.reg.Link(linkID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLink, linkID)
	}

	intervals := make([]Interval, 0, 4)
	field := link.MarginField()
	if field == "" {
		return intervals, nil
	}

	var (
		runStart time.Time
		runEnd   time.Time
		inRun    bool
	)
	for ts, v := range a.store.ValueSeries(field) {
		if inOutage(v, thresholdDB) {
			if !inRun {
				runStart = ts
				inRun = true
			}
			runEnd = ts
			continue
		}
		if inRun {
			end := runEnd
			intervals = append(intervals, Interval{LinkID: linkID, StartTime: runStart, EndTime: &end})
			inRun = false
		}
	}
	if inRun {
		iv := Interval{LinkID: linkID, StartTime: runStart}
		if a.store.Len() == 1 {
			end := runEnd
			iv.EndTime = &end
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

// StatusAt resolves t to the nearest sample at or before it and reports
// the link's condition there.
func (a *Analyzer) StatusAt(linkID string, thresholdDB float64, t time.Time) (Status, error) {
	if err := ValidateThreshold(thresholdDB); err != nil {
		return Status{}, err
	}
	link, ok := a.reg.Link(linkID)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownLink, linkID)
	}
	idx, ok := a.store.NearestIndex(t)
	if !ok {
		return Status{}, ErrNoSamples
	}

	st := Status{LinkID: linkID, Time: a.store.TimeAt(idx)}
	v, _ := a.store.Value(link.MarginField(), idx)
	if v.Valid {
		margin := v.Float64
		st.MarginDB = &margin
	} else {
		st.Redacted = true
	}
	st.InOutage = inOutage(v, thresholdDB)
	return st, nil
}

// Stats computes the interval summary for one link.
func (a *Analyzer) Stats(linkID string, thresholdDB float64) (Stats, error) {
	intervals, err := a.ComputeOutages(linkID, thresholdDB)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{LinkID: linkID}
	_, missionEnd, _ := a.store.TimeRange()
	for _, iv := range intervals {
		st.Count++
		end := missionEnd
		if iv.EndTime != nil {
			end = *iv.EndTime
		} else {
			st.OpenEnded = true
		}
		d := end.Sub(iv.StartTime)
		st.Total += d
		if d > st.Longest {
			st.Longest = d
		}
	}
	return st, nil
}

// Summary computes Stats for every known link, ordered by link ID.
func (a *Analyzer) Summary(thresholdDB float64) ([]Stats, error) {
	if err := ValidateThreshold(thresholdDB); err != nil {
		return nil, err
	}
	ids := a.reg.LinkIDs()
	out := make([]Stats, 0, len(ids))
	for _, id := range ids {
		st, err := a.Stats(id, thresholdDB)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// inOutage applies the margin rule: redacted counts as an outage sample,
// as does any margin strictly below the threshold.
func inOutage(v model.Value, thresholdDB float64) bool {
	return !v.Valid || v.Float64 < thresholdDB
}

// ValidateThreshold rejects thresholds that are negative or not finite.
func ValidateThreshold(db float64) error {
	if math.IsNaN(db) || math.IsInf(db, 0) || db < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, db)
	}
	return nil
}
