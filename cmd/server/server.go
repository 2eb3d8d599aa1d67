package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/janhq/companion-relay/internal/config"
	"github.com/janhq/companion-relay/internal/domain"
	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/domain/relay"
	"github.com/janhq/companion-relay/internal/infrastructure/auth"
	"github.com/janhq/companion-relay/internal/infrastructure/cache"
	"github.com/janhq/companion-relay/internal/infrastructure/database"
	"github.com/janhq/companion-relay/internal/infrastructure/database/repository/chatrepo"
	"github.com/janhq/companion-relay/internal/infrastructure/inference"
	"github.com/janhq/companion-relay/internal/infrastructure/logger"
	"github.com/janhq/companion-relay/internal/infrastructure/metrics"
	"github.com/janhq/companion-relay/internal/infrastructure/observability"
	"github.com/janhq/companion-relay/internal/infrastructure/registry"
	"github.com/janhq/companion-relay/internal/infrastructure/store"
	"github.com/janhq/companion-relay/internal/infrastructure/telemetry"
	"github.com/janhq/companion-relay/internal/infrastructure/wsrelay"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/handlers"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/routes"
)

// ChatStore is everything the relay needs from the conversation store.
type ChatStore interface {
	conversation.Store
	character.Store
	Ping(ctx context.Context) error
}

// Application holds the main application components.
//
// @title Companion Relay API
// @version 1.0
// @description Conversation and character REST API plus the streaming chat relay socket.
// @BasePath /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
type Application struct {
	cfg        *config.Config
	httpServer *httpserver.HTTPServer
	engine     *relay.Engine
	hub        *wsrelay.Hub
	sweeper    *registry.Sweeper
	closers    []func() error
	log        zerolog.Logger
}

// Start runs the application until ctx is cancelled, then drains in-flight exchanges.
func (a *Application) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.sweeper.Start(gctx)
	g.Go(func() error {
		return a.httpServer.Run(gctx)
	})

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.engine.Drain(ctx); err != nil {
		a.log.Warn().Err(err).Msg("in-flight exchanges did not finish before shutdown timeout")
	}
	if err := a.hub.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("relay hub shutdown incomplete")
	}
	a.sweeper.Stop()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("failed to release resource")
		}
	}
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	app, err := buildApplication(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}

	log.Info().
		Str("service", cfg.ServiceName).
		Int("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Str("store", cfg.StoreDriver).
		Str("registry", cfg.RegistryDriver).
		Str("serialization", cfg.RelaySerialization).
		Str("disconnect_policy", cfg.RelayDisconnectPolicy).
		Msg("starting application")

	if err := app.Start(ctx); err != nil {
		log.Error().Err(err).Msg("application stopped with error")
		return
	}

	log.Info().Msg("application exited cleanly")
}

// buildApplication hand-wires the dependency graph described in wire.go.
func buildApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Application, error) {
	app := &Application{cfg: cfg, log: log}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("auth validator: %w", err)
	}

	chatStore, closeStore, err := ProvideChatStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeStore)

	var redisCache *cache.RedisCache
	if cfg.RegistryDriver == config.DriverRedis || cfg.RelaySerialization == config.SerializationLock {
		redisCache, err = cache.NewRedisCache(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.closers = append(app.closers, redisCache.Close)
	}

	connRegistry, err := ProvideConnectionRegistry(cfg, redisCache)
	if err != nil {
		return nil, err
	}
	connections := domain.ProvideConnectionService(connRegistry, ProvideConnectionHooks(), log)

	serializer, stopSerializer := ProvideSerializer(cfg, redisCache)
	app.closers = append(app.closers, stopSerializer)

	provider := ProvideCompletionProvider(cfg, log)
	app.closers = append(app.closers, provider.Close)

	sanitizer, err := ProvideSanitizer(cfg)
	if err != nil {
		return nil, err
	}

	hub := ProvideHub(cfg, connections, log)
	engine, err := domain.ProvideRelayEngine(cfg, chatStore, provider, hub, serializer,
		observability.NewRelayObserver(sanitizer), log)
	if err != nil {
		return nil, err
	}

	handlerProvider := handlers.NewProvider(
		handlers.NewConversationHandler(domain.ProvideConversationService(chatStore, chatStore, log)),
		handlers.NewCharacterHandler(domain.ProvideCharacterService(chatStore, provider, log)),
		ProvideRelayHandler(cfg, hub, engine, connections),
	)
	routeProvider := routes.NewProvider(handlerProvider, authValidator)

	app.httpServer = httpserver.New(cfg, log, routeProvider, authValidator, sanitizer, chatStore)
	if redisCache != nil {
		app.httpServer.AddReadinessCheck("redis", httpserver.PingerFunc(redisCache.HealthCheck))
	}
	app.engine = engine
	app.hub = hub
	app.sweeper = ProvideSweeper(cfg, connections, hub, chatStore, log)
	return app, nil
}

// ProvideChatStore opens the configured conversation store.
func ProvideChatStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ChatStore, func() error, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn().Msg("using in-memory conversation store, data is lost on restart")
		return store.NewMemoryStore(log), func() error { return nil }, nil
	}

	db, err := database.Connect(database.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxLifetime: cfg.DBConnLifetime,
		LogLevel:    gormLogLevel(cfg),
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		_ = database.Close(db)
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return chatrepo.NewRepository(db), closeDB(db), nil
}

// ProvideConnectionRegistry selects the registry backend.
func ProvideConnectionRegistry(cfg *config.Config, redisCache *cache.RedisCache) (connection.Registry, error) {
	if cfg.RegistryDriver == config.DriverRedis {
		return registry.NewRedisRegistry(redisCache.Client(), cfg.WSMaxLifetime+cfg.RegistrySweepInterval, 10*time.Minute), nil
	}
	return registry.NewMemoryRegistry(cfg.RegistryTombstones)
}

// ProvideConnectionHooks records connection metrics.
func ProvideConnectionHooks() connection.Hooks {
	return connection.Hooks{
		Connected: func(*connection.Connection) {
			metrics.RecordConnectionOpened()
		},
		Disconnected: func(_ *connection.Connection, lifetime time.Duration) {
			metrics.RecordConnectionClosed(lifetime)
		},
	}
}

// ProvideSerializer selects the per-conversation ordering policy.
func ProvideSerializer(cfg *config.Config, redisCache *cache.RedisCache) (relay.Serializer, func() error) {
	switch cfg.RelaySerialization {
	case config.SerializationQueue:
		queue := relay.NewQueue(cfg.RelayQueueIdleTimeout)
		return queue, func() error { queue.Stop(); return nil }
	case config.SerializationLock:
		return cache.NewConversationLock(redisCache, cfg.RelayLockTTL), func() error { return nil }
	default:
		return relay.Direct{}, func() error { return nil }
	}
}

// ProvideCompletionProvider builds the provider client. Credentials are resolved lazily on first use.
func ProvideCompletionProvider(cfg *config.Config, log zerolog.Logger) *inference.Provider {
	var fetcher inference.SecretFetcher
	if cfg.GroqAPIKeySecret != "" {
		fetcher = inference.NewAWSSecretFetcher(cfg.AWSRegion)
	}
	keys := inference.NewKeyResolver(cfg.GroqAPIKey, cfg.GroqAPIKeySecret, fetcher, log)
	client := inference.NewChatClient("groq", cfg.ProviderBaseURL, cfg.ProviderTimeout, log)

	return inference.NewProvider(inference.ProviderConfig{
		Model:       cfg.ProviderModel,
		Temperature: cfg.ProviderTemperature,
		MaxTokens:   cfg.ProviderMaxTokens,
		TopP:        cfg.ProviderTopP,
	}, client, keys, log)
}

// ProvideSanitizer builds the telemetry PII sanitizer.
func ProvideSanitizer(cfg *config.Config) (*telemetry.Sanitizer, error) {
	level, err := telemetry.ParsePIILevel(cfg.PIILevel)
	if err != nil {
		return nil, err
	}
	return telemetry.NewSanitizer(level, cfg.ServiceName+":"+cfg.Environment), nil
}

// ProvideHub builds the WebSocket transport.
func ProvideHub(cfg *config.Config, connections connection.Service, log zerolog.Logger) *wsrelay.Hub {
	return wsrelay.NewHub(wsrelay.Config{
		NodeID:       cfg.NodeID,
		WriteTimeout: cfg.WSWriteTimeout,
		PingInterval: cfg.WSPingInterval,
		IdleTimeout:  cfg.WSIdleTimeout,
		ReadLimit:    cfg.WSReadLimit,
	}, connections, log)
}

// ProvideRelayHandler builds the relay HTTP handler.
func ProvideRelayHandler(cfg *config.Config, hub *wsrelay.Hub, engine *relay.Engine, connections connection.Service) *handlers.RelayHandler {
	return handlers.NewRelayHandler(hub, engine, connections, cfg.NodeID)
}

// ProvideSweeper builds the registry sweeper.
func ProvideSweeper(cfg *config.Config, connections connection.Service, hub *wsrelay.Hub, chatStore ChatStore, log zerolog.Logger) *registry.Sweeper {
	return registry.NewSweeper(connections, hub, chatStore, registry.SweeperConfig{
		NodeID:      cfg.NodeID,
		MaxLifetime: cfg.WSMaxLifetime,
		Retention:   cfg.MessageRetention,
		Interval:    cfg.RegistrySweepInterval,
	}, log)
}

func gormLogLevel(cfg *config.Config) gormlogger.LogLevel {
	if cfg.LogLevel == "debug" {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

func closeDB(db *gorm.DB) func() error {
	return func() error { return database.Close(db) }
}

func loadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
