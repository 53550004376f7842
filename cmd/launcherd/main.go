// main is the entry point of the launcherd backend.
// It initializes the configuration, logger, database and application state, then serves UI commands.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/launcherd/internal/app"
	"github.com/woozymasta/launcherd/internal/config"
	"github.com/woozymasta/launcherd/internal/environment"
	"github.com/woozymasta/launcherd/internal/events"
	"github.com/woozymasta/launcherd/internal/fake"
	"github.com/woozymasta/launcherd/internal/geoip"
	"github.com/woozymasta/launcherd/internal/install"
	"github.com/woozymasta/launcherd/internal/logger"
	"github.com/woozymasta/launcherd/internal/maintenance"
	"github.com/woozymasta/launcherd/internal/metrics"
	"github.com/woozymasta/launcherd/internal/router"
	"github.com/woozymasta/launcherd/internal/scheduler"
	"github.com/woozymasta/launcherd/internal/server"
	"github.com/woozymasta/launcherd/internal/settings"
	"github.com/woozymasta/launcherd/internal/status"
	"github.com/woozymasta/launcherd/internal/storage"
	"github.com/woozymasta/launcherd/internal/vars"
)

func main() {
	cfg := config.Parse()

	logCloser := logger.Setup(cfg.Logger)
	defer func() { _ = logCloser.Close() }()

	log.Info().Str("version", vars.Version).Msg("Starting launcherd...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(ctx, store, cfg.Storage.GenerateCount)
		return
	} else if maintenance.Run(ctx, cfg, store) {
		return
	}

	// Settings
	persister := settings.NewFilePersister(cfg.Settings.Path)
	settingsStore := settings.Open(persister)

	if cfg.Settings.Watch {
		watcher, err := settings.NewWatcher(settingsStore, persister, 0)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create settings watcher, hot reload disabled")
		} else if err := watcher.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to watch settings file, hot reload disabled")
		} else {
			defer func() { _ = watcher.Stop() }()
		}
	}

	// Status
	probe, closeGeoIP := newStatusProbe(ctx, cfg, store)
	defer closeGeoIP()

	// Metrics and events
	prom := metrics.NewPrometheus()
	bus := events.NewBus(events.DefaultBuffer, prom.IncEventsDropped)

	// Install workflow
	workflow := install.New(install.Options{
		Transfer:       install.NewTransfer(cfg.Install.SourceURL, cfg.Install.StepDelay, &http.Client{}),
		Emitter:        bus,
		Store:          store,
		Recorder:       prom,
		Dir:            cfg.Install.Dir,
		Checksum:       cfg.Install.Checksum,
		Version:        cfg.Install.Version,
		Runtime:        cfg.Runtime.Executable,
		InstallDelay:   cfg.Install.InstallDelay,
		UninstallDelay: cfg.Install.UninstallDelay,
	})
	if err := workflow.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to restore installation state")
	}

	state := &app.State{
		Settings:    settingsStore,
		Status:      probe,
		Environment: environment.NewProbe(cfg.Runtime.Executable, cfg.Runtime.VersionFlag, cfg.Runtime.CheckTimeout),
		Workflow:    workflow,
		Events:      bus,
		History:     store,
		Build:       vars.Info(),
	}

	// Background jobs
	sched, err := scheduler.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if _, err := sched.ScheduleStatusRefresh(cfg.Status.RefreshInterval, probe); err != nil {
		log.Error().Err(err).Msg("Failed to schedule status refresh")
	}
	if _, err := sched.ScheduleHistoryPrune(24*time.Hour, cfg.Storage.HistoryRetention, store); err != nil {
		log.Error().Err(err).Msg("Failed to schedule history pruning")
	}
	sched.Start()

	// Init server
	srvHandler := server.New(router.New(state, prom), bus, prom.Handler(), cfg)
	srvHandler.StartWorkers()

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srvHandler.Run(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		// request contexts end with the process so SSE streams and downloads stop on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	if workflow.Cancel() {
		log.Info().Msg("Running download cancelled")
	}

	// Shut down HTTP
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	srvHandler.StopWorkers()
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop scheduler")
	}
	bus.Close()

	log.Info().Msg("Server exited")
}

// newStatusProbe builds the status probe: A2S queries when a host is configured, the
// simulated source otherwise. The returned func releases the GeoIP database.
func newStatusProbe(ctx context.Context, cfg *config.Config, store *storage.Repository) (*status.Probe, func()) {
	opts := []status.Option{status.WithRecorder(store)}
	closer := func() {}

	if cfg.A2S.Host == "" {
		log.Info().Msg("No A2S host configured, using simulated server status")
		return status.NewProbe(status.StubSource{}, opts...), closer
	}

	// GeoIP Update
	if cfg.GeoIP.Path != "" {
		log.Info().Msg("Checking GeoIP database...")
		if err := geoip.EnsureDB(ctx, cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}

		geoProvider, err := geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		} else {
			opts = append(opts, status.WithLocator(geoProvider, cfg.A2S.Host))
			closer = func() {
				if err := geoProvider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}
		}
	}

	log.Info().
		Str("host", cfg.A2S.Host).
		Int("port", cfg.A2S.Port).
		Msg("Querying server status over A2S")

	return status.NewProbe(status.NewA2SSource(cfg.A2S, cfg.Status.DegradedLatency), opts...), closer
}
