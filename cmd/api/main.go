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
	"syscall"
	"time"

	"hotelledger/internal/api"
	"hotelledger/internal/config"
	"hotelledger/internal/database"
	"hotelledger/internal/domain"
	"hotelledger/internal/events"
	"hotelledger/internal/google"
	"hotelledger/internal/interval"
	"hotelledger/internal/keylock"
	"hotelledger/internal/logging"
	"hotelledger/internal/metrics"
	"hotelledger/internal/models"
	"hotelledger/internal/notify"
	"hotelledger/internal/repository"
	"hotelledger/internal/service"
	"hotelledger/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	bus := events.NewEventBus()
	if fwd := initAMQP(cfg, bus, logger); fwd != nil {
		defer (func() { _ = fwd.Close() })()
	}
	initTelegram(cfg, bus, logger)

	var mirror domain.MirrorQueue
	if mw := initMirror(ctx, cfg, db, redisClient, logger); mw != nil {
		mirror = mw
		go mw.Start(ctx)
	}

	svc, projector, err := buildServices(ctx, cfg, db, redisClient, bus, mirror, logger)
	if err != nil {
		return err
	}

	if n, err := projector.ReconcileAll(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial room status reconcile failed")
	} else {
		logger.Info().Int("rooms", n).Msg("room statuses reconciled")
	}
	go projector.Start(ctx, cfg.Ledger.ReconcileEvery())
	go database.NewBackupService(cfg.Database.Path, cfg.Backup, logger).Start(ctx)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, svc, logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(&cfg.API, svc, db, logger)

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

// buildServices wires the ledger and restores its in-memory state.
func buildServices(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	bus *events.EventBus,
	mirror domain.MirrorQueue,
	logger *zerolog.Logger,
) (*api.Services, *service.OccupancyProjector, error) {
	ttl := time.Duration(cfg.Ledger.ProjectionTTL) * time.Second
	if ttl <= 0 {
		ttl = models.DefaultProjectionTTL * time.Second
	}

	var cache domain.OccupancyCache = repository.NewMemoryOccupancyCache(ttl)
	if redisClient != nil {
		cache = repository.NewFailoverOccupancyCache(repository.NewRedisOccupancyCache(redisClient, ttl), cache, logger)
	}

	index := interval.NewIndex()
	locks := keylock.New()
	projector := service.NewOccupancyProjector(db, db, cache, bus, locks, logging.Component(logger, "projector"))
	rooms := service.NewRoomService(db, projector, locks, logging.Component(logger, "rooms"))
	bookings := service.NewBookingService(db, db, index, locks, projector, bus, mirror,
		cfg.Ledger.MaxBookingDays, logging.Component(logger, "bookings"))
	inventory := service.NewInventoryService(db, locks, bus, mirror, logging.Component(logger, "inventory"))

	seeds, err := loadRooms(logger)
	if err != nil {
		return nil, nil, err
	}
	if len(seeds) > 0 {
		created, err := rooms.Seed(ctx, seeds)
		if err != nil {
			return nil, nil, fmt.Errorf("seed rooms: %w", err)
		}
		logger.Info().Int("created", created).Int("total", len(seeds)).Msg("rooms seeded")
	}

	restored, err := bookings.Restore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("restore bookings: %w", err)
	}
	logger.Info().Int("bookings", restored).Msg("interval index restored")

	return &api.Services{
		Rooms:        rooms,
		Availability: service.NewAvailabilityService(db, index),
		Bookings:     bookings,
		Inventory:    inventory,
		Outbox:       db,
	}, projector, nil
}

// loadRooms reads the optional room seed file.
func loadRooms(logger *zerolog.Logger) ([]*models.Room, error) {
	roomsPath := os.Getenv("ROOMS_PATH")
	if roomsPath == "" {
		roomsPath = "configs/rooms.yaml"
	}
	data, err := os.ReadFile(roomsPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("rooms_path", roomsPath).Msg("no room seed file")
		return nil, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("rooms_path", roomsPath).Msg("read rooms")
		return nil, err
	}

	var roomsConfig struct {
		Rooms []config.RoomSeed `yaml:"rooms"`
	}
	if err := yaml.Unmarshal(data, &roomsConfig); err != nil {
		logger.Error().Err(err).Str("rooms_path", roomsPath).Msg("parse rooms")
		return nil, err
	}

	if err := config.ValidateRooms(roomsConfig.Rooms); err != nil {
		return nil, fmt.Errorf("%s: %w", roomsPath, err)
	}

	out := make([]*models.Room, 0, len(roomsConfig.Rooms))
	for _, seed := range roomsConfig.Rooms {
		room, err := seed.ToRoom()
		if err != nil {
			return nil, err
		}
		out = append(out, &room)
	}
	return out, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initAMQP(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *events.AMQPForwarder {
	if cfg.AMQP.URL == "" {
		return nil
	}
	fwd, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, logging.Component(logger, "amqp"))
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq init failed, continuing without event forwarding")
		return nil
	}
	bus.Subscribe(events.AllEvents, fwd.Handle)
	logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("rabbitmq connected")
	return fwd
}

func initTelegram(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.ManagerChatIDs) == 0 {
		return
	}
	bot, err := notify.NewBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return
	}
	notify.NewTelegramNotifier(bot, cfg.Telegram.ManagerChatIDs, logging.Component(logger, "telegram")).Subscribe(bus)
	logger.Info().Int("chats", len(cfg.Telegram.ManagerChatIDs)).Msg("telegram notifications enabled")
}

func initMirror(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.MirrorWorker {
	if !cfg.Google.Enabled() {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return worker.NewMirrorWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, logging.Component(logger, "mirror"))
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
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.ListenAndServe(); err != nil {
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
