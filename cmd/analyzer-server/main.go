package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"

	"github.com/signalsfoundry/flightdata-analyzer/ingest"
	"github.com/signalsfoundry/flightdata-analyzer/internal/api"
	"github.com/signalsfoundry/flightdata-analyzer/internal/config"
	"github.com/signalsfoundry/flightdata-analyzer/internal/logging"
	"github.com/signalsfoundry/flightdata-analyzer/internal/observability"
	"github.com/signalsfoundry/flightdata-analyzer/session"
)

func main() {
	configPath := flag.String("config", "", "Path to the analyzer YAML configuration")
	datasetPath := flag.String("dataset", "", "Telemetry CSV to load at startup, overriding the configured autoload")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.String("path", *configPath), logging.String("error", err.Error()))
		os.Exit(1)
	}
	log = logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}

	collector, err := observability.NewAPICollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	pbCollector, err := observability.NewPlaybackCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise playback metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}

	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)

	loader := ingest.NewLoader(
		ingest.WithLogger(log),
		ingest.WithMaxWarnings(cfg.Dataset.MaxWarnings),
	)
	sess := session.New(
		session.WithLogger(log),
		session.WithLoader(loader),
		session.WithMetrics(collector),
		session.WithPlaybackMetrics(pbCollector),
		session.WithSpeedBounds(cfg.Playback.MinSpeed, cfg.Playback.MaxSpeed),
		session.WithThreshold(cfg.Outage.DefaultThresholdDB),
	)

	autoload := cfg.Dataset.Autoload
	if *datasetPath != "" {
		autoload = *datasetPath
	}
	if autoload != "" {
		if _, err := sess.Load(ctx, autoload); err != nil {
			log.Error(ctx, "failed to load startup dataset", logging.String("path", autoload), logging.String("error", err.Error()))
			os.Exit(1)
		}
	}

	server := api.New(sess, api.WithLogger(log), api.WithCollector(collector))
	httpSrv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.Router(),
	}

	log.Info(ctx, "starting analyzer API server", logging.String("addr", cfg.Server.ListenAddr))
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "API server exited", logging.String("error", err.Error()))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if tick := cfg.Playback.TickInterval.Std(); tick > 0 {
		go func() {
			if err := sess.Run(stopCtx, tick); err != nil {
				log.Warn(ctx, "playback loop exited", logging.String("error", err.Error()))
			}
		}()
	}

	<-stopCtx.Done()

	log.Info(ctx, "shutting down analyzer server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func serveMetrics(addr string, collector *observability.APICollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
