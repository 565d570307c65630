package session

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/flightdata-analyzer/internal/logging"
	"github.com/signalsfoundry/flightdata-analyzer/outage"
	"github.com/signalsfoundry/flightdata-analyzer/playback"
	"github.com/signalsfoundry/flightdata-analyzer/timeseries"
)

// DefaultTickInterval drives Run when the configuration does not say
// otherwise.
const DefaultTickInterval = 100 * time.Millisecond

// Snapshot is the per-tick view consumed by the replay UI: playback
// position, the resolved record, and the monitored link's condition at
// the current time.
type Snapshot struct {
	MissionID   string            `json:"mission_id"`
	ThresholdDB float64           `json:"threshold_db"`
	Playback    playback.Snapshot `json:"playback"`
	Link        *outage.Status    `json:"link,omitempty"`
}

// Play starts or resumes playback.
func (s *Session) Play(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.current.Load()
	if m == nil {
		return Snapshot{}, ErrNoDataset
	}
	s.engine.Play()
	s.log.Debug(ctx, "playback started", logging.String("mission_id", m.ID))
	return s.snapshotLocked(m), nil
}

// Pause suspends playback in place.
func (s *Session) Pause(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.current.Load()
	if m == nil {
		return Snapshot{}, ErrNoDataset
	}
	s.engine.Pause()
	s.log.Debug(ctx, "playback paused", logging.String("mission_id", m.ID))
	return s.snapshotLocked(m), nil
}

// Stop halts playback and rewinds to the start of the mission.
func (s *Session) Stop(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.current.Load()
	if m == nil {
		return Snapshot{}, ErrNoDataset
	}
	s.engine.Stop()
	s.log.Debug(ctx, "playback stopped", logging.String("mission_id", m.ID))
	return s.snapshotLocked(m), nil
}

// Seek moves the cursor to t, clamped to the mission's time range.
func (s *Session) Seek(ctx context.Context, t time.Time) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.current.Load()
	if m == nil {
		return Snapshot{}, ErrNoDataset
	}
	st := s.engine.Seek(t)
	if s.pbm != nil {
		s.pbm.IncSeek()
	}
	s.log.Debug(ctx, "playback seek",
		logging.String("mission_id", m.ID),
		logging.String("current_time", st.CurrentTime.Format(time.RFC3339Nano)))
	return s.snapshotLocked(m), nil
}

// SetSpeed changes the playback speed multiplier. Invalid values are
// rejected and the previous speed stays in effect.
func (s *Session) SetSpeed(ctx context.Context, multiplier float64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.current.Load()
	if m == nil {
		return Snapshot{}, ErrNoDataset
	}
	if err := s.engine.SetSpeed(multiplier); err != nil {
		return Snapshot{}, err
	}
	s.log.Debug(ctx, "playback speed changed",
		logging.String("mission_id", m.ID),
		logging.Float64("speed", s.engine.State().Speed))
	return s.snapshotLocked(m), nil
}

// Advance moves simulated time forward by an elapsed wall-clock delta.
// It is the single ordering point for playback: the server tick loop and
// HTTP-driven stepping both funnel through here.
func (s *Session) Advance(ctx context.Context, delta time.Duration) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.current.Load()
	if m == nil {
		return Snapshot{}, ErrNoDataset
	}
	wasPlaying := s.engine.State().Status == playback.Playing
	st := s.engine.Advance(delta)
	if wasPlaying && s.pbm != nil {
		s.pbm.IncTick()
	}
	if wasPlaying && st.Status == playback.Stopped {
		s.log.Info(ctx, "end of mission reached",
			logging.String("mission_id", m.ID),
			logging.String("current_time", st.CurrentTime.Format(time.RFC3339Nano)))
	}
	return s.snapshotLocked(m), nil
}

// PlaybackSnapshot returns the current view without advancing.
func (s *Session) PlaybackSnapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.current.Load()
	if m == nil {
		return Snapshot{}, ErrNoDataset
	}
	return s.snapshotLocked(m), nil
}

// Run drives playback from a wall-clock ticker until ctx is cancelled.
// Ticks while nothing is loaded or playing are no-ops, so Run can start
// before the first mission arrives.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	s.log.Info(ctx, "playback loop started", logging.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := s.now()
	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "playback loop stopped")
			return nil
		case <-ticker.C:
			now := s.now()
			if _, err := s.Advance(ctx, now.Sub(last)); err != nil && !errors.Is(err, ErrNoDataset) {
				s.log.Warn(ctx, "playback tick failed", logging.Any("error", err))
			}
			last = now
		}
	}
}

// snapshotLocked composes the tick view. Callers hold s.mu, so the engine
// and mission are a consistent pair.
func (s *Session) snapshotLocked(m *Mission) Snapshot {
	snap := Snapshot{
		MissionID:   m.ID,
		ThresholdDB: s.threshold,
		Playback:    s.engine.Snapshot(),
	}
	if s.selected != "" {
		if st, err := m.Analyzer.StatusAt(s.selected, s.threshold, snap.Playback.State.CurrentTime); err == nil {
			snap.Link = &st
		}
	}
	if s.pbm != nil {
		s.pbm.SetSpeed(snap.Playback.State.Speed)
		s.pbm.SetProgress(missionProgress(m.Store, snap.Playback.State.CurrentTime))
	}
	return snap
}

// missionProgress maps the current time onto [0,1] across the mission's
// span. A single-sample mission is always complete.
func missionProgress(store *timeseries.Store, at time.Time) float64 {
	min, max, ok := store.TimeRange()
	if !ok {
		return 0
	}
	span := max.Sub(min)
	if span <= 0 {
		return 1
	}
	ratio := float64(at.Sub(min)) / float64(span)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
