package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fixit/internal/api"
	"fixit/internal/config"
	"fixit/internal/database"
	"fixit/internal/domain"
	"fixit/internal/events"
	"fixit/internal/export"
	"fixit/internal/google"
	"fixit/internal/logging"
	"fixit/internal/metrics"
	"fixit/internal/models"
	"fixit/internal/payment"
	"fixit/internal/repository"
	"fixit/internal/service"
	"fixit/internal/storage"
	"fixit/internal/worker"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	catalog := service.NewCatalogService(db, logging.Component(&logger, "catalog"))
	if err := seedCatalog(ctx, catalog, &logger); err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	router := events.NewRouter(events.DefaultBufferSize, logging.Component(&logger, "rooms"))
	defer router.Close()
	publisher, err := initPublisher(ctx, cfg, redisClient, router, &logger)
	if err != nil {
		return err
	}

	var locker domain.Locker = repository.NewMemoryLocker()
	if redisClient != nil {
		redisLocker := repository.NewRedisLocker(redisClient, cfg.Locks.TTL, cfg.Locks.Prefix)
		locker = repository.NewFailoverLocker(redisLocker, locker, logging.Component(&logger, "locks"))
	}

	blobs, err := storage.New(cfg.Storage, logging.Component(&logger, "storage"))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	gateway, err := payment.New(cfg.Payment)
	if err != nil {
		return fmt.Errorf("init payment gateway: %w", err)
	}

	ledgerWorker := initLedgerWorker(ctx, cfg, db, redisClient, &logger)
	var syncWorker domain.SyncWorker
	if ledgerWorker != nil {
		syncWorker = ledgerWorker
		go ledgerWorker.Start(ctx)
	}

	centre := orb.Point{cfg.Matching.DefaultLon, cfg.Matching.DefaultLat}
	matching := service.NewMatchingEngine(db, publisher, syncWorker, nil, centre, cfg.Matching.NearbyLimit, logging.Component(&logger, "matching"))
	lifecycle := service.NewLifecycleManager(db, publisher, syncWorker, locker, blobs, matching, logging.Component(&logger, "lifecycle"))
	admin := service.NewAdminService(db, export.NewExcelExporter(cfg.Exports.Path, &logger), logging.Component(&logger, "admin"))
	if ledgerWorker != nil {
		admin.WithLedger(ledgerWorker)
	}
	backend := api.Backend{
		Matching:       matching,
		Lifecycle:      lifecycle,
		Payments:       service.NewPaymentCoordinator(db, gateway, publisher, cfg.Payment.Currency, cfg.Payment.Timeout, logging.Component(&logger, "payments")),
		Providers:      service.NewProviderService(db, publisher, logging.Component(&logger, "providers")),
		Catalog:        catalog,
		Admin:          admin,
		MaxUploadBytes: cfg.Storage.MaxUploadMB << 20,
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, api.NewNotificationService(router, lifecycle), &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(cfg.API, backend, &logger)

	go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)
	startMetrics(ctx, cfg, &logger)

	err = startServers(ctx, grpcServer, httpServer, router, cfg, &logger)
	if ledgerWorker != nil {
		ledgerWorker.Wait()
	}
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("create exports directory")
		return err
	}
	return nil
}

func seedCatalog(ctx context.Context, catalog *service.CatalogService, logger *zerolog.Logger) error {
	servicesPath := os.Getenv("SERVICES_PATH")
	if servicesPath == "" {
		servicesPath = "configs/services.yaml"
	}
	services, err := models.LoadServices(servicesPath)
	if err != nil {
		logger.Error().Err(err).Str("services_path", servicesPath).Msg("load services")
		return err
	}

	if _, err := catalog.Seed(ctx, services); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initPublisher returns the Redis broker when Redis is available so rooms
// span instances, and the local router otherwise.
func initPublisher(ctx context.Context, cfg *config.Config, client *redis.Client, router *events.Router, logger *zerolog.Logger) (domain.EventPublisher, error) {
	if client == nil {
		return router, nil
	}
	broker := events.NewRedisBroker(client, router, cfg.Redis.Channel, logging.Component(logger, "broker"))
	if err := broker.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("room broker unavailable, events stay local")
		return router, nil
	}
	return broker, nil
}

func initLedgerWorker(ctx context.Context, cfg *config.Config, db *database.DB, client *redis.Client, logger *zerolog.Logger) *worker.LedgerWorker {
	if cfg.Google.CredentialsFile == "" || cfg.Google.LedgerSpreadsheetID == "" {
		return nil
	}

	ledger, err := google.NewLedgerService(ctx, cfg.Google.CredentialsFile, cfg.Google.LedgerSpreadsheetID, cfg.Google.LedgerSheet)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without ledger")
		return nil
	}
	if err := ledger.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("ledger spreadsheet unreachable, continuing without ledger")
		return nil
	}
	if err := ledger.WriteHeaders(ctx); err != nil {
		logger.Warn().Err(err).Msg("write ledger headers")
	}
	if cfg.Google.ResyncOnStart {
		resyncLedger(ctx, db, ledger, logger)
	}
	if err := ledger.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("warm up ledger cache")
	}
	logger.Info().Msg("google sheets ledger connected")

	retry := worker.NewRetryPolicy(cfg.Worker)
	return worker.NewLedgerWorker(db, ledger, client, cfg.Worker.QueueKey, retry, logging.Component(logger, "ledger-worker"))
}

// resyncLedger rewrites the sheet from the store, dropping rows the queue lost.
func resyncLedger(ctx context.Context, db *database.DB, ledger *google.LedgerService, logger *zerolog.Logger) {
	bookings, err := db.ListBookingsByDateRange(ctx, time.Time{}, time.Now().Add(time.Minute))
	if err != nil {
		logger.Warn().Err(err).Msg("load bookings for ledger resync")
		return
	}
	if err := ledger.ReplaceBookings(ctx, bookings); err != nil {
		logger.Warn().Err(err).Msg("ledger resync failed")
		return
	}
	logger.Info().Int("bookings", len(bookings)).Msg("ledger resynced")
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	router *events.Router,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Closing the router ends open room streams so gRPC can drain.
	logger.Info().Int("rooms", len(router.Rooms())).Msg("closing notification rooms")
	router.Close()
	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
