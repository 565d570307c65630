package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PlaybackCollector exposes playback-specific Prometheus metrics.
type PlaybackCollector struct {
	gatherer prometheus.Gatherer

	TicksTotal      prometheus.Counter
	SeeksTotal      prometheus.Counter
	SpeedMultiplier prometheus.Gauge
	MissionProgress prometheus.Gauge
}

// NewPlaybackCollector registers playback metrics against the provided registerer.
func NewPlaybackCollector(reg prometheus.Registerer) (*PlaybackCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_ticks_total",
		Help: "Cumulative number of applied playback advancement ticks.",
	})
	ticks, err := registerCounter(reg, ticks, "playback_ticks_total")
	if err != nil {
		return nil, err
	}

	seeks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_seeks_total",
		Help: "Cumulative number of playback seek operations.",
	})
	seeks, err = registerCounter(reg, seeks, "playback_seeks_total")
	if err != nil {
		return nil, err
	}

	speed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_speed_multiplier",
		Help: "Playback speed multiplier currently in effect.",
	})
	speed, err = registerGauge(reg, speed, "playback_speed_multiplier")
	if err != nil {
		return nil, err
	}

	progress := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_mission_progress_ratio",
		Help: "Playback position as a fraction of the mission's time span.",
	})
	progress, err = registerGauge(reg, progress, "playback_mission_progress_ratio")
	if err != nil {
		return nil, err
	}

	return &PlaybackCollector{
		gatherer:        gatherer,
		TicksTotal:      ticks,
		SeeksTotal:      seeks,
		SpeedMultiplier: speed,
		MissionProgress: progress,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PlaybackCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncTick increments the applied-tick counter.
func (c *PlaybackCollector) IncTick() {
	if c == nil || c.TicksTotal == nil {
		return
	}
	c.TicksTotal.Inc()
}

// IncSeek increments the seek counter.
func (c *PlaybackCollector) IncSeek() {
	if c == nil || c.SeeksTotal == nil {
		return
	}
	c.SeeksTotal.Inc()
}

// SetSpeed updates the speed multiplier gauge.
func (c *PlaybackCollector) SetSpeed(multiplier float64) {
	if c == nil || c.SpeedMultiplier == nil {
		return
	}
	c.SpeedMultiplier.Set(multiplier)
}

// SetProgress sets the mission progress gauge.
func (c *PlaybackCollector) SetProgress(ratio float64) {
	if c == nil || c.MissionProgress == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.MissionProgress.Set(ratio)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
