package outage

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/flightdata-analyzer/model"
	"github.com/signalsfoundry/flightdata-analyzer/schema"
	"github.com/signalsfoundry/flightdata-analyzer/timeseries"
)

const marginColumn = "COMM_LEO_SATCOM_dB"

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// newTestAnalyzer builds a one-link mission with one sample per second.
func newTestAnalyzer(t *testing.T, margins ...model.Value) *Analyzer {
	t.Helper()
	times := make([]time.Time, len(margins))
	positions := make([]model.Position, len(margins))
	for i := range margins {
		times[i] = t0.Add(time.Duration(i) * time.Second)
		positions[i] = model.Position{LatitudeDeg: 34, LongitudeDeg: -117, AltitudeFt: 25000}
	}
	store, err := timeseries.New(times, positions, map[string][]model.Value{marginColumn: margins})
	if err != nil {
		t.Fatalf("timeseries.New: %v", err)
	}
	return NewAnalyzer(store, schema.Build([]string{marginColumn}))
}

func TestComputeOutagesMergesContiguousRuns(t *testing.T) {
	a := newTestAnalyzer(t,
		model.Measured(5), model.Measured(1), model.Measured(1), model.Measured(5))

	intervals, err := a.ComputeOutages("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("ComputeOutages: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("intervals = %d, want 1", len(intervals))
	}
	iv := intervals[0]
	if !iv.StartTime.Equal(t0.Add(1 * time.Second)) {
		t.Fatalf("start = %v, want %v", iv.StartTime, t0.Add(1*time.Second))
	}
	if iv.EndTime == nil || !iv.EndTime.Equal(t0.Add(2*time.Second)) {
		t.Fatalf("end = %v, want %v", iv.EndTime, t0.Add(2*time.Second))
	}
}

func TestComputeOutagesTrailingRunIsOpen(t *testing.T) {
	a := newTestAnalyzer(t, model.Measured(5), model.Measured(1), model.Measured(1))

	intervals, err := a.ComputeOutages("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("ComputeOutages: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("intervals = %d, want 1", len(intervals))
	}
	if !intervals[0].Open() {
		t.Fatalf("trailing interval closed at %v, want open", intervals[0].EndTime)
	}
	if !intervals[0].StartTime.Equal(t0.Add(1 * time.Second)) {
		t.Fatalf("start = %v, want %v", intervals[0].StartTime, t0.Add(1*time.Second))
	}
}

// One in-outage sample in a one-sample mission closes on itself instead of
// reporting an open interval of unknowable extent.
func TestComputeOutagesSingleSampleMission(t *testing.T) {
	a := newTestAnalyzer(t, model.Measured(1))

	intervals, err := a.ComputeOutages("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("ComputeOutages: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("intervals = %d, want 1", len(intervals))
	}
	iv := intervals[0]
	if iv.Open() {
		t.Fatalf("single-sample interval left open")
	}
	if !iv.EndTime.Equal(iv.StartTime) {
		t.Fatalf("interval %v..%v, want zero duration", iv.StartTime, *iv.EndTime)
	}

	st, err := a.Stats("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Count != 1 || st.Total != 0 {
		t.Fatalf("stats = %+v, want one zero-duration interval", st)
	}
}

func TestComputeOutagesRedactedCountsAsOutage(t *testing.T) {
	a := newTestAnalyzer(t, model.Redacted(), model.Redacted(), model.Redacted())

	intervals, err := a.ComputeOutages("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("ComputeOutages: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("intervals = %d, want 1 spanning interval", len(intervals))
	}
	if !intervals[0].StartTime.Equal(t0) || !intervals[0].Open() {
		t.Fatalf("interval = %+v, want open from %v", intervals[0], t0)
	}
}

func TestComputeOutagesEmptyMission(t *testing.T) {
	a := NewAnalyzer(timeseries.Empty(), schema.Build([]string{marginColumn}))

	intervals, err := a.ComputeOutages("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("ComputeOutages: %v", err)
	}
	if len(intervals) != 0 {
		t.Fatalf("intervals = %v, want none", intervals)
	}
}

// A margin equal to the threshold is healthy; only strictly lower margins
// count as outage samples.
func TestComputeOutagesThresholdBoundary(t *testing.T) {
	a := newTestAnalyzer(t, model.Measured(3), model.Measured(3))

	intervals, err := a.ComputeOutages("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("ComputeOutages: %v", err)
	}
	if len(intervals) != 0 {
		t.Fatalf("intervals = %v, want none at the boundary", intervals)
	}
}

func TestComputeOutagesRejectsInvalidThreshold(t *testing.T) {
	a := newTestAnalyzer(t, model.Measured(5))
	for _, bad := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := a.ComputeOutages("LEO_SATCOM", bad); !errors.Is(err, ErrInvalidThreshold) {
			t.Fatalf("threshold %v: err = %v, want ErrInvalidThreshold", bad, err)
		}
	}
}

func TestComputeOutagesUnknownLink(t *testing.T) {
	a := newTestAnalyzer(t, model.Measured(5))
	if _, err := a.ComputeOutages("KU_BAND", 3.0); !errors.Is(err, ErrUnknownLink) {
		t.Fatalf("err = %v, want ErrUnknownLink", err)
	}
}

// The analyzer holds no threshold state, so consecutive calls with
// different thresholds see the full series each time.
func TestThresholdChangeRecomputes(t *testing.T) {
	a := newTestAnalyzer(t, model.Measured(1), model.Measured(1))

	low, err := a.ComputeOutages("LEO_SATCOM", 0.5)
	if err != nil {
		t.Fatalf("ComputeOutages(0.5): %v", err)
	}
	if len(low) != 0 {
		t.Fatalf("intervals at 0.5 = %d, want 0", len(low))
	}

	high, err := a.ComputeOutages("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("ComputeOutages(3.0): %v", err)
	}
	if len(high) != 1 {
		t.Fatalf("intervals at 3.0 = %d, want 1", len(high))
	}
}

func TestComputeOutagesAlternatingRuns(t *testing.T) {
	a := newTestAnalyzer(t,
		model.Measured(1), model.Measured(5),
		model.Measured(1), model.Measured(5),
		model.Measured(1), model.Measured(5))

	intervals, err := a.ComputeOutages("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("ComputeOutages: %v", err)
	}
	if len(intervals) != 3 {
		t.Fatalf("intervals = %d, want 3", len(intervals))
	}
	for i, iv := range intervals {
		if iv.Open() {
			t.Fatalf("interval %d open, all runs recover before the end", i)
		}
		if !iv.EndTime.Equal(iv.StartTime) {
			t.Fatalf("interval %d = %v..%v, want single-sample run", i, iv.StartTime, *iv.EndTime)
		}
	}
}

func TestStatsMeasuresOpenIntervalToMissionEnd(t *testing.T) {
	a := newTestAnalyzer(t, model.Measured(5), model.Measured(1), model.Measured(1))

	st, err := a.Stats("LEO_SATCOM", 3.0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Count != 1 || !st.OpenEnded {
		t.Fatalf("stats = %+v, want one open-ended interval", st)
	}
	if st.Total != 1*time.Second || st.Longest != 1*time.Second {
		t.Fatalf("durations = %v/%v, want 1s/1s measured to mission end", st.Total, st.Longest)
	}
}

func TestStatusAtResolvesFloorSample(t *testing.T) {
	a := newTestAnalyzer(t, model.Measured(5), model.Measured(1), model.Redacted())

	st, err := a.StatusAt("LEO_SATCOM", 3.0, t0.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("StatusAt: %v", err)
	}
	if !st.Time.Equal(t0) || st.InOutage {
		t.Fatalf("status = %+v, want healthy sample at %v", st, t0)
	}
	if st.MarginDB == nil || *st.MarginDB != 5 {
		t.Fatalf("margin = %v, want 5", st.MarginDB)
	}

	st, err = a.StatusAt("LEO_SATCOM", 3.0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("StatusAt past end: %v", err)
	}
	if !st.Time.Equal(t0.Add(2 * time.Second)) {
		t.Fatalf("clamped time = %v, want %v", st.Time, t0.Add(2*time.Second))
	}
	if !st.Redacted || !st.InOutage || st.MarginDB != nil {
		t.Fatalf("status = %+v, want redacted outage with no margin", st)
	}
}

func TestStatusAtEmptyMission(t *testing.T) {
	a := NewAnalyzer(timeseries.Empty(), schema.Build([]string{marginColumn}))
	if _, err := a.StatusAt("LEO_SATCOM", 3.0, t0); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("err = %v, want ErrNoSamples", err)
	}
}

func TestSummaryCoversAllLinksInOrder(t *testing.T) {
	times := []time.Time{t0, t0.Add(time.Second)}
	positions := []model.Position{{}, {}}
	series := map[string][]model.Value{
		"COMM_UHF_LOS_dB":    {model.Measured(1), model.Measured(1)},
		"COMM_GEO_SATCOM_dB": {model.Measured(5), model.Measured(5)},
	}
	store, err := timeseries.New(times, positions, series)
	if err != nil {
		t.Fatalf("timeseries.New: %v", err)
	}
	a := NewAnalyzer(store, schema.Build([]string{"COMM_UHF_LOS_dB", "COMM_GEO_SATCOM_dB"}))

	summary, err := a.Summary(3.0)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary links = %d, want 2", len(summary))
	}
	if summary[0].LinkID != "GEO_SATCOM" || summary[1].LinkID != "UHF_LOS" {
		t.Fatalf("order = %s, %s, want GEO_SATCOM then UHF_LOS", summary[0].LinkID, summary[1].LinkID)
	}
	if summary[0].Count != 0 {
		t.Fatalf("GEO_SATCOM count = %d, want 0", summary[0].Count)
	}
	if summary[1].Count != 1 || !summary[1].OpenEnded {
		t.Fatalf("UHF_LOS stats = %+v, want one open-ended interval", summary[1])
	}
}
