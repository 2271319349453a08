package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bhunjadi/pagination/admin"
	"github.com/bhunjadi/pagination/cfg"
	"github.com/bhunjadi/pagination/db"
	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/notify"
	"github.com/bhunjadi/pagination/publisher"
	"github.com/bhunjadi/pagination/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	statsInterval   = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Pagination - paginated subscription server")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	a, err := newApp(publisher.DefaultHooks())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
		return
	}
	defer a.Close()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info().
		Str("address", cfg.ListenAddress()).
		Str("path", cfg.Config.Server.Path).
		Str("data_dir", cfg.Config.DataDir).
		Strs("publications", a.server.Publications()).
		Msg("Server is operational")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
}

// app holds the long lived components wired from cfg.Config
type app struct {
	hub       *notify.Hub
	bridge    *notify.NatsBridge
	store     *db.Store
	server    *ddp.Server
	collector *telemetry.MetricsCollector
}

func newApp(hooks *publisher.Hooks) (*app, error) {
	a := &app{hub: notify.NewHub(cfg.Config.NodeID)}

	if cfg.Config.Notify.NatsURL != "" {
		bridge, err := notify.NewNatsBridge(cfg.Config.Notify.NatsURL, cfg.Config.Notify.SubjectPrefix, a.hub)
		if err != nil {
			return nil, err
		}
		a.bridge = bridge
	}

	store, err := db.Open(cfg.Config.Store, cfg.Config.DataDir, a.hub)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = store

	a.server = ddp.NewServer(ddp.OptionsFromConfig(cfg.Config.Server))
	if cfg.Config.Server.UserHeader != "" {
		a.server.Authenticate = ddp.HeaderAuthenticator(cfg.Config.Server.UserHeader)
	}

	for _, pc := range cfg.Config.Publications {
		settings, err := publisher.SettingsFromConfig(pc, hooks)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("publication %s: %w", pc.Collection, err)
		}
		source := publisher.CollectionSource(a.store.Collection(pc.Collection))
		if err := publisher.Register(a.server, source, settings); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.collector = telemetry.NewMetricsCollector(a.hub, statsInterval)
	a.collector.Start()

	return a, nil
}

// Routes returns the HTTP handler serving the websocket endpoint, the admin
// API and metrics, as enabled in cfg.Config
func (a *app) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(cfg.Config.Server.Path, a.server)

	if cfg.Config.Admin.Enabled {
		admin.RegisterRoutes(mux, admin.NewAdminHandlers(a.server, a.store))
	}

	if h := telemetry.GetMetricsHandler(); h != nil {
		mux.Handle("/metrics", h)
	}

	return mux
}

// Close stops sessions first so their observers release before the store closes
func (a *app) Close() {
	if a.collector != nil {
		a.collector.Stop()
	}
	if a.server != nil {
		a.server.Close()
	}
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close NATS bridge")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}
