// Package session owns the currently loaded mission and every stateful
// parameter around it: the playback engine, the selected link, and the
// outage threshold. Loading is publish-once: a mission becomes visible
// only after validation finishes, and a failed load leaves the previous
// mission untouched. Readers holding the old mission pointer keep a
// consistent view until they drop it.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/flightdata-analyzer/ingest"
	"github.com/signalsfoundry/flightdata-analyzer/internal/logging"
	"github.com/signalsfoundry/flightdata-analyzer/model"
	"github.com/signalsfoundry/flightdata-analyzer/outage"
	"github.com/signalsfoundry/flightdata-analyzer/playback"
	"github.com/signalsfoundry/flightdata-analyzer/schema"
	"github.com/signalsfoundry/flightdata-analyzer/timeseries"
)

// DefaultThresholdDB is the outage threshold in effect until an operator
// chooses another one.
const DefaultThresholdDB = 3.0

// ErrNoDataset reports an operation that needs a loaded mission.
var ErrNoDataset = errors.New("no dataset loaded")

// Mission bundles everything derived from one accepted dataset. All of it
// is immutable after construction.
type Mission struct {
	ID       string
	Source   string
	LoadedAt time.Time
	Store    *timeseries.Store
	Registry *schema.Registry
	Report   *model.ValidationReport
	Analyzer *outage.Analyzer
}

// MetricsRecorder receives dataset lifecycle measurements. A nil recorder
// disables recording.
type MetricsRecorder interface {
	ObserveLoad(accepted, rejected, redacted int, elapsed time.Duration)
	ObserveLoadFailure()
	ObserveOutageScan(elapsed time.Duration)
	SetMissionCounts(rows, subsystems, links int)
}

// PlaybackRecorder receives playback activity measurements. A nil
// recorder disables recording.
type PlaybackRecorder interface {
	IncTick()
	IncSeek()
	SetSpeed(multiplier float64)
	SetProgress(ratio float64)
}

// Session is safe for concurrent use. Mission reads go through an atomic
// pointer; playback and parameter mutation are serialized by a mutex.
type Session struct {
	log     logging.Logger
	loader  *ingest.Loader
	metrics MetricsRecorder
	pbm     PlaybackRecorder
	now     func() time.Time

	speedBounds []playback.Option

	current atomic.Pointer[Mission]

	mu        sync.Mutex
	engine    *playback.Engine
	selected  string
	threshold float64
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithLoader(l *ingest.Loader) Option {
	return func(s *Session) {
		if l != nil {
			s.loader = l
		}
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *Session) { s.metrics = m }
}

func WithPlaybackMetrics(p PlaybackRecorder) Option {
	return func(s *Session) { s.pbm = p }
}

// WithClock substitutes the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSpeedBounds forwards a speed clamp range to every playback engine
// the session creates.
func WithSpeedBounds(min, max float64) Option {
	return func(s *Session) {
		s.speedBounds = []playback.Option{playback.WithSpeedBounds(min, max)}
	}
}

// WithThreshold sets the initial outage threshold. Invalid values keep
// the default.
func WithThreshold(db float64) Option {
	return func(s *Session) {
		if outage.ValidateThreshold(db) == nil {
			s.threshold = db
		}
	}
}

// New returns a session with no mission loaded.
func New(opts ...Option) *Session {
	s := &Session{
		log:       logging.Noop(),
		loader:    ingest.NewLoader(),
		now:       time.Now,
		threshold: DefaultThresholdDB,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load validates the file at path and, on success, atomically replaces
// the current mission. On failure the previous mission stays in place and
// remains fully usable.
func (s *Session) Load(ctx context.Context, path string) (*model.ValidationReport, error) {
	start := s.now()
	res, err := s.loader.LoadFile(ctx, path)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveLoadFailure()
		}
		s.log.Error(ctx, "mission load failed",
			logging.String("path", path), logging.Any("error", err))
		return nil, err
	}
	return s.install(ctx, res, s.now().Sub(start)), nil
}

// LoadReader validates CSV content from r. source names the origin for
// the report, typically "stdin" or a filename.
func (s *Session) LoadReader(ctx context.Context, r io.Reader, source string) (*model.ValidationReport, error) {
	start := s.now()
	res, err := s.loader.Load(ctx, r, source)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveLoadFailure()
		}
		s.log.Error(ctx, "mission load failed",
			logging.String("source", source), logging.Any("error", err))
		return nil, err
	}
	return s.install(ctx, res, s.now().Sub(start)), nil
}

func (s *Session) install(ctx context.Context, res *ingest.Result, elapsed time.Duration) *model.ValidationReport {
	m := &Mission{
		ID:       res.Report.DatasetID,
		Source:   res.Report.Source,
		LoadedAt: s.now(),
		Store:    res.Store,
		Registry: res.Registry,
		Report:   &res.Report,
		Analyzer: outage.NewAnalyzer(res.Store, res.Registry),
	}

	links := m.Registry.LinkIDs()
	s.mu.Lock()
	s.current.Store(m)
	s.engine = playback.NewEngine(m.Store, s.speedBounds...)
	s.selected = ""
	if len(links) > 0 {
		s.selected = links[0]
	}
	s.mu.Unlock()

	if s.metrics != nil {
		rep := m.Report
		s.metrics.ObserveLoad(rep.AcceptedRows, rep.RejectedRows, rep.RedactedCellCount, elapsed)
		s.metrics.SetMissionCounts(m.Store.Len(), len(m.Registry.SubsystemIDs()), len(links))
	}
	s.log.Info(ctx, "mission installed",
		logging.String("mission_id", m.ID),
		logging.String("source", m.Source),
		logging.Int("rows", m.Store.Len()),
		logging.Int("links", len(links)),
		logging.Duration("elapsed", elapsed))
	return m.Report
}

// Current returns the loaded mission, if any.
func (s *Session) Current() (*Mission, bool) {
	m := s.current.Load()
	return m, m != nil
}

// Threshold returns the outage threshold currently in effect.
func (s *Session) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// SetThreshold replaces the session threshold. An invalid value is
// rejected and the previous threshold stays in effect.
func (s *Session) SetThreshold(db float64) error {
	if err := outage.ValidateThreshold(db); err != nil {
		return err
	}
	s.mu.Lock()
	s.threshold = db
	s.mu.Unlock()
	return nil
}

// SelectedLink returns the link monitored in playback snapshots. It is
// empty when the mission has no links.
func (s *Session) SelectedLink() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// SelectLink changes the monitored link. Unknown IDs are rejected and the
// previous selection stays in effect.
func (s *Session) SelectLink(id string) error {
	m, ok := s.Current()
	if !ok {
		return ErrNoDataset
	}
	if _, found := m.Registry.Link(id); !found {
		return fmt.Errorf("%w: %s", outage.ErrUnknownLink, id)
	}
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
	return nil
}

// Outages computes the interval list for one link at the given threshold.
func (s *Session) Outages(ctx context.Context, linkID string, thresholdDB float64) ([]outage.Interval, error) {
	m, ok := s.Current()
	if !ok {
		return nil, ErrNoDataset
	}
	start := s.now()
	intervals, err := m.Analyzer.ComputeOutages(linkID, thresholdDB)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveOutageScan(s.now().Sub(start))
	}
	s.log.Debug(ctx, "outage scan complete",
		logging.String("link", linkID),
		logging.Float64("threshold_db", thresholdDB),
		logging.Int("intervals", len(intervals)))
	return intervals, nil
}

// OutageSummary computes per-link outage statistics for every link.
func (s *Session) OutageSummary(ctx context.Context, thresholdDB float64) ([]outage.Stats, error) {
	m, ok := s.Current()
	if !ok {
		return nil, ErrNoDataset
	}
	start := s.now()
	summary, err := m.Analyzer.Summary(thresholdDB)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveOutageScan(s.now().Sub(start))
	}
	s.log.Debug(ctx, "outage summary complete",
		logging.Float64("threshold_db", thresholdDB),
		logging.Int("links", len(summary)))
	return summary, nil
}
