// Package api exposes the analyzer over HTTP/JSON: dataset loading, the
// validation report, schema discovery, series access, outage analysis,
// and playback control. Telemetry itself always enters through files; the
// API only points the server at them and reads derived views back.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/flightdata-analyzer/internal/logging"
	"github.com/signalsfoundry/flightdata-analyzer/internal/observability"
	"github.com/signalsfoundry/flightdata-analyzer/session"
)

// Server wires the session to the HTTP routes.
type Server struct {
	log       logging.Logger
	session   *session.Session
	collector *observability.APICollector
	router    *mux.Router
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCollector enables per-route metrics collection.
func WithCollector(c *observability.APICollector) Option {
	return func(s *Server) { s.collector = c }
}

// New builds a Server around sess and registers all routes.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		log:     logging.Noop(),
		session: sess,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.newRouter()
	return s
}

// Router returns the fully configured handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestIDMiddleware(s.log))
	r.Use(TracingMiddleware())
	if s.collector != nil {
		r.Use(s.collector.Middleware)
	}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/dataset", s.handleLoadDataset).Methods(http.MethodPost)
	v1.HandleFunc("/dataset/report", s.handleReport).Methods(http.MethodGet)
	v1.HandleFunc("/schema", s.handleSchema).Methods(http.MethodGet)
	v1.HandleFunc("/series/{column}", s.handleSeries).Methods(http.MethodGet)
	v1.HandleFunc("/outages", s.handleOutageSummary).Methods(http.MethodGet)
	v1.HandleFunc("/outages/{link}", s.handleOutages).Methods(http.MethodGet)
	v1.HandleFunc("/threshold", s.handleSetThreshold).Methods(http.MethodPost)
	v1.HandleFunc("/track", s.handleTrack).Methods(http.MethodGet)
	v1.HandleFunc("/playback", s.handlePlaybackSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/playback/play", s.handlePlay).Methods(http.MethodPost)
	v1.HandleFunc("/playback/pause", s.handlePause).Methods(http.MethodPost)
	v1.HandleFunc("/playback/stop", s.handleStop).Methods(http.MethodPost)
	v1.HandleFunc("/playback/seek", s.handleSeek).Methods(http.MethodPost)
	v1.HandleFunc("/playback/speed", s.handleSpeed).Methods(http.MethodPost)
	v1.HandleFunc("/playback/link", s.handleSelectLink).Methods(http.MethodPost)
	v1.HandleFunc("/playback/advance", s.handleAdvance).Methods(http.MethodPost)
	return r
}
