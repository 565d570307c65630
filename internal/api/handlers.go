package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/flightdata-analyzer/model"
	"github.com/signalsfoundry/flightdata-analyzer/outage"
	"github.com/signalsfoundry/flightdata-analyzer/session"
	"github.com/signalsfoundry/flightdata-analyzer/track"
)

type loadRequest struct {
	Path string `json:"path"`
}

type thresholdRequest struct {
	ThresholdDB float64 `json:"threshold_db"`
}

type seekRequest struct {
	Time time.Time `json:"time"`
}

type speedRequest struct {
	Multiplier float64 `json:"multiplier"`
}

type selectLinkRequest struct {
	LinkID string `json:"link_id"`
}

type advanceRequest struct {
	Delta string `json:"delta"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type schemaResponse struct {
	Subsystems []model.SubsystemDescriptor `json:"subsystems"`
	Links      []model.LinkDescriptor      `json:"links"`
}

type seriesPoint struct {
	Time  time.Time   `json:"t"`
	Value model.Value `json:"v"`
}

type seriesResponse struct {
	Column string        `json:"column"`
	Points []seriesPoint `json:"points"`
}

type outagesResponse struct {
	LinkID      string            `json:"link_id"`
	ThresholdDB float64           `json:"threshold_db"`
	Intervals   []outage.Interval `json:"intervals"`
}

type summaryResponse struct {
	ThresholdDB float64        `json:"threshold_db"`
	Links       []outage.Stats `json:"links"`
}

type thresholdResponse struct {
	ThresholdDB float64 `json:"threshold_db"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleLoadDataset(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Path == "" {
		writeError(w, r, fmt.Errorf("%w: path is required", errBadRequest))
		return
	}
	rep, err := s.session.Load(r.Context(), req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, rep)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	m, ok := s.session.Current()
	if !ok {
		writeError(w, r, session.ErrNoDataset)
		return
	}
	writeData(w, http.StatusOK, m.Report)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	m, ok := s.session.Current()
	if !ok {
		writeError(w, r, session.ErrNoDataset)
		return
	}
	writeData(w, http.StatusOK, schemaResponse{
		Subsystems: m.Registry.Subsystems(),
		Links:      m.Registry.Links(),
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	m, ok := s.session.Current()
	if !ok {
		writeError(w, r, session.ErrNoDataset)
		return
	}
	column := mux.Vars(r)["column"]
	if !m.Store.HasColumn(column) {
		writeError(w, r, fmt.Errorf("%w: %s", errUnknownColumn, column))
		return
	}
	from, err := timeParam(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := timeParam(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	maxPoints, err := intParam(r, "max")
	if err != nil {
		writeError(w, r, err)
		return
	}

	points := make([]seriesPoint, 0, m.Store.Len())
	for ts, v := range m.Store.ValueSeries(column) {
		if !from.IsZero() && ts.Before(from) {
			continue
		}
		if !to.IsZero() && ts.After(to) {
			break
		}
		points = append(points, seriesPoint{Time: ts, Value: v})
	}
	points = downsample(points, maxPoints)
	writeData(w, http.StatusOK, seriesResponse{Column: column, Points: points})
}

// downsample keeps roughly max evenly strided points. The first point
// always survives so a window never comes back empty.
func downsample(points []seriesPoint, max int) []seriesPoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	stride := (len(points) + max - 1) / max
	sampled := make([]seriesPoint, 0, max)
	for i := 0; i < len(points); i += stride {
		sampled = append(sampled, points[i])
	}
	return sampled
}

func (s *Server) handleOutages(w http.ResponseWriter, r *http.Request) {
	linkID := mux.Vars(r)["link"]
	db, err := s.thresholdFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	intervals, err := s.session.Outages(r.Context(), linkID, db)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, outagesResponse{
		LinkID:      linkID,
		ThresholdDB: db,
		Intervals:   intervals,
	})
}

func (s *Server) handleOutageSummary(w http.ResponseWriter, r *http.Request) {
	db, err := s.thresholdFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.session.OutageSummary(r.Context(), db)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summaryResponse{ThresholdDB: db, Links: stats})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.session.SetThreshold(req.ThresholdDB); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, thresholdResponse{ThresholdDB: s.session.Threshold()})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	m, ok := s.session.Current()
	if !ok {
		writeError(w, r, session.ErrNoDataset)
		return
	}
	writeData(w, http.StatusOK, track.Summarize(m.Store))
}

func (s *Server) handlePlaybackSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.PlaybackSnapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Play(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Pause(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Stop(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Time.IsZero() {
		writeError(w, r, fmt.Errorf("%w: time is required", errBadRequest))
		return
	}
	snap, err := s.session.Seek(r.Context(), req.Time)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.session.SetSpeed(r.Context(), req.Multiplier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (s *Server) handleSelectLink(w http.ResponseWriter, r *http.Request) {
	var req selectLinkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.session.SelectLink(req.LinkID); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.session.PlaybackSnapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

// handleAdvance moves playback by an explicit delta. It exists so clients
// that render frames themselves can drive time deterministically instead
// of depending on the server tick loop.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	delta, err := time.ParseDuration(req.Delta)
	if err != nil || delta <= 0 {
		writeError(w, r, fmt.Errorf("%w: delta %q", errBadRequest, req.Delta))
		return
	}
	snap, err := s.session.Advance(r.Context(), delta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}
