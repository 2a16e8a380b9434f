package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gearrental/internal/api"
	"gearrental/internal/audit"
	"gearrental/internal/auth"
	"gearrental/internal/cache"
	"gearrental/internal/config"
	"gearrental/internal/database"
	"gearrental/internal/events"
	"gearrental/internal/identity"
	"gearrental/internal/metrics"
	"gearrental/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(os.Getenv("GEARRENTAL_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("path", cfg.CatalogPath).Msg("Gear catalog not found, using built-in defaults")
		catalog = config.DefaultCatalog()
	} else if err != nil {
		logger.Fatal().Err(err).Msg("load gear catalog")
	}
	if err := db.SyncGearsFromCatalog(ctx, catalog); err != nil {
		logger.Fatal().Err(err).Msg("sync gear catalog")
	}
	go config.NewCatalogWatcher(cfg.CatalogPath, 30*time.Second, &logger).Run(ctx, func(c *config.CatalogConfig) {
		if err := db.SyncGearsFromCatalog(ctx, c); err != nil {
			logger.Error().Err(err).Msg("Failed to apply gear catalog update")
			return
		}
		logger.Info().Int("gears", len(c.Gears)).Msg("Gear catalog reloaded")
	})

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	bookedDates := cache.NewBookedDates(rdb, cfg.BookedDatesTTL())

	bus := events.NewEventBus()
	bus.OnError(func(e events.Event, err error) {
		logger.Warn().Err(err).Str("event", e.Type).Msg("Event handler failed")
	})
	bus.Subscribe(events.BookingCreated, bookedDates.HandleBookingEvent)
	bus.Subscribe(events.BookingStatusChanged, bookedDates.HandleBookingEvent)
	metrics.SubscribeEvents(bus)

	bookings := service.NewBookingService(db, bus, bookedDates, cfg.Booking, &logger)
	idClient := identity.NewClient(cfg.Identity, &logger)
	if idClient.Mock() {
		logger.Warn().Msg("Identity provider API key not set, undertaking OTPs run in mock mode")
	}
	undertaking := service.NewUndertakingService(db, idClient, bus, &logger)

	reports := audit.NewService(audit.Config{
		ExportDir: cfg.Audit.ExportDir,
		Retention: cfg.AuditRetention(),
	}, db, audit.NewWorkbook, db, &logger)
	if cfg.Audit.Enabled {
		reports.Start()
		defer reports.Stop()
	}

	go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Options{
		Addr:              cfg.Server.Addr,
		ReadTimeout:       cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, bookings, undertaking, db, reports, auth.NewVerifier(cfg.Auth.JWTSecret), &logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Logging.JSON {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, fmt.Sprintf(":%d", port), mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, fmt.Sprintf(":%d", port), mux, "metrics", logger)
}

func serve(ctx context.Context, addr string, h http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
