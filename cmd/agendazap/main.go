package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"agendazap/internal/api"
	"agendazap/internal/config"
	"agendazap/internal/conversation"
	"agendazap/internal/database"
	"agendazap/internal/dialogue"
	"agendazap/internal/domain"
	"agendazap/internal/events"
	"agendazap/internal/export"
	"agendazap/internal/google"
	"agendazap/internal/logging"
	"agendazap/internal/metrics"
	"agendazap/internal/models"
	"agendazap/internal/notify"
	"agendazap/internal/repository"
	"agendazap/internal/service"
	"agendazap/internal/worker"

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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	redisClient, state := initStateRepository(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus()
	subscribeContactEvents(eventBus, &logger)

	sheets := initGoogleSheets(ctx, cfg, loc, &logger)
	notifier := notify.NewWhatsAppNotifier(cfg.WhatsApp, &logger)

	taskWorker := worker.NewTaskWorker(db, db, notifier, sheets, redisClient, cfg.Worker, &logger)
	if sheets != nil {
		taskWorker.Subscribe(eventBus)
	}
	go taskWorker.Start(ctx)

	bands, err := service.NewTurnBands(cfg.Scheduling.Turns)
	if err != nil {
		return fmt.Errorf("turn bands: %w", err)
	}
	calendar := service.NewCalendar(db, &logger)
	resolver := service.NewResolver(calendar, db, loc, &logger)
	ledger := service.NewLedger(db, eventBus, &logger)
	pending := service.NewPending(state, cfg.Scheduling.ProposalTTL, cfg.Scheduling.AffirmativeTokens, &logger)
	scheduler := service.NewScheduler(db, resolver, ledger, pending, state, taskWorker, eventBus, bands, &logger)

	reminders, err := worker.NewReminderWorker(db, taskWorker, cfg.Scheduling, loc, &logger)
	if err != nil {
		return err
	}
	go reminders.Start(ctx)

	engine := initDialogue(cfg, &logger)
	inbox := conversation.NewHandler(db, scheduler, engine, state, taskWorker, eventBus, cfg.Scheduling, loc, &logger)
	defer inbox.Close()

	exporter := export.NewExporter(db, loc, cfg.Exports.Path, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Scheduler: scheduler,
		Inbox:     inbox,
		Windows:   calendar,
		Slots:     resolver,
		Ledger:    ledger,
		Exporter:  exporter,
		Silences:  db,
		Health: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	}, &logger)

	return serve(ctx, cfg, httpServer, &logger)
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
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Error().Err(err).Msg("create database directory")
			return err
		}
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("create exports directory")
		return err
	}
	return nil
}

// initStateRepository prefers Redis and falls back to memory when Redis is
// disabled or unreachable at start.
func initStateRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.StateRepository) {
	ttl := models.DefaultRedisTTL
	if cfg.Scheduling.ProposalTTL > ttl {
		ttl = cfg.Scheduling.ProposalTTL
	}
	memory := repository.NewMemoryStateRepository(ttl)

	if !cfg.Redis.Enabled {
		logger.Info().Msg("redis disabled, using in-memory state")
		return nil, memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, using in-memory state")
		_ = repository.Close(client)
		return nil, memory
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	primary := repository.NewRedisStateRepository(client, ttl)
	return client, repository.NewFailoverStateRepository(primary, memory, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) domain.SheetsWriter {
	if !cfg.Google.Enabled {
		return nil
	}

	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.SheetName, loc, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("write sheet header")
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("warm up sheet row cache")
	}

	logger.Info().Str("spreadsheet_id", cfg.Google.SpreadsheetID).Msg("google sheets connected")
	return sheets
}

func initDialogue(cfg *config.Config, logger *zerolog.Logger) dialogue.Engine {
	if cfg.Dialogue.URL == "" {
		logger.Warn().Msg("dialogue service not configured, replying with the generic message")
		return nil
	}
	engine, err := dialogue.NewHTTPEngine(cfg.Dialogue, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("dialogue engine init failed")
		return nil
	}
	return engine
}

func subscribeContactEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventContactNamed, func(ev *events.Event) error {
		var payload events.ContactEventPayload
		if err := ev.Decode(&payload); err != nil {
			return err
		}
		logger.Info().
			Int64("tenant_id", payload.TenantID).
			Int64("contact_id", payload.ContactID).
			Str("phone", logging.MaskPhone(payload.Phone)).
			Msg("contact name learned")
		return nil
	})
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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, cfg *config.Config, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	if cfg.API.HTTP.Enabled {
		go func() { errCh <- httpServer.Start() }()
	} else {
		logger.Warn().Msg("HTTP API disabled, webhook traffic will not be received")
	}

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("agendazap started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("agendazap stopped")
	return nil
}
