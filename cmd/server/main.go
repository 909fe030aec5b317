package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/cohort"
	"github.com/lychee-technology/cohort/internal"
	"go.uber.org/zap"
)

// Server exposes the local member's typedef registry over HTTP and feeds
// local changes into the cohort synchronizer.
type Server struct {
	store    cohort.TypeDefStore
	engine   *cohort.PatchEngine
	sync     *cohort.CohortSynchronizer
	security *cohort.SecurityVerifier
	mux      *http.ServeMux
}

// NewServer creates a new Server instance.
func NewServer(store cohort.TypeDefStore, engine *cohort.PatchEngine, sync *cohort.CohortSynchronizer, security *cohort.SecurityVerifier) *Server {
	return &Server{
		store:    store,
		engine:   engine,
		sync:     sync,
		security: security,
		mux:      http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes.
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("/api/v1/typedefs", s.handleTypeDefs)
	s.mux.HandleFunc("/api/v1/typedefs/", s.handleTypeDefByGUID)
	s.mux.HandleFunc("/api/v1/typedef-by-name/", s.handleTypeDefByName)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// Start starts the HTTP server on the given port.
func (s *Server) Start(port string) error {
	zap.S().Infow("starting cohort member server", "port", port)
	return http.ListenAndServe(":"+port, s.mux)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	cfg := configFromEnv()
	if err := cfg.Validate(); err != nil {
		sugar.Fatalf("invalid configuration: %v", err)
	}

	audit := cohort.NewZapAuditLog()
	engine := cohort.NewPatchEngine(cfg.Cohort.MemberName, audit)

	store := buildStore(cfg, sugar)

	if cfg.Registry.ArchiveDir != "" {
		loaded, err := internal.LoadTypeDefArchive(context.Background(), store, cfg.Registry.ArchiveDir)
		if err != nil {
			sugar.Fatalf("failed to load typedef archive: %v", err)
		}
		sugar.Infow("typedef archive loaded", "dir", cfg.Registry.ArchiveDir, "typedefs", loaded)
	}

	factory := internal.NewRedisTopicConnectorFactory(cfg.Redis)
	publisher := cohort.NewEventPublisher(cfg.Topic.TopicName, factory, audit,
		cohort.WithPollInterval(cfg.Topic.PollInterval),
		cohort.WithMaxRetries(cfg.Topic.MaxRetries),
		cohort.WithRecoverySleep(cfg.Topic.RecoverySleep),
	)
	if err := publisher.Start(); err != nil {
		sugar.Fatalf("failed to start event publisher: %v", err)
	}

	synchronizer := cohort.NewCohortSynchronizer(cfg.Cohort.MemberName, store, engine, audit, publisher)

	inbound, err := internal.NewRedisTopicConnector(cfg.Redis)
	if err != nil {
		sugar.Fatalf("failed to connect to cohort topic: %v", err)
	}
	defer inbound.Close()
	synchronizer.Start(inbound)

	security := cohort.NewSecurityVerifier(cohort.AllowAllOracle{}, audit)

	server := NewServer(store, engine, synchronizer, security)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// buildStore picks the durable postgres store when DB_HOST is configured and
// falls back to the in-memory catalog otherwise.
func buildStore(cfg *cohort.Config, sugar *zap.SugaredLogger) cohort.TypeDefStore {
	if os.Getenv("DB_HOST") == "" {
		sugar.Infow("no database configured, using in-memory typedef catalog")
		return cohort.NewTypeDefCatalog()
	}
	pool, err := createDatabasePoolFromConfig(cfg.Database)
	if err != nil {
		sugar.Fatalf("failed to create database pool: %v", err)
	}
	return internal.NewPostgresTypeDefStore(pool, getEnv("TYPEDEF_TABLE", "typedefs"))
}

func configFromEnv() *cohort.Config {
	cfg := cohort.DefaultConfig()

	cfg.Cohort.CohortName = getEnv("COHORT_NAME", cfg.Cohort.CohortName)
	cfg.Cohort.MemberName = getEnv("MEMBER_NAME", cfg.Cohort.MemberName)
	cfg.Cohort.MetadataUserID = getEnv("METADATA_USER_ID", cfg.Cohort.MetadataUserID)

	cfg.Topic.TopicName = getEnv("TOPIC_NAME", cfg.Topic.TopicName)
	cfg.Topic.PollInterval = time.Duration(getEnvInt("TOPIC_POLL_INTERVAL_MS", int(cfg.Topic.PollInterval.Milliseconds()))) * time.Millisecond
	cfg.Topic.MaxRetries = getEnvInt("TOPIC_MAX_RETRIES", cfg.Topic.MaxRetries)
	cfg.Topic.RecoverySleep = time.Duration(getEnvInt("TOPIC_RECOVERY_SLEEP_MS", int(cfg.Topic.RecoverySleep.Milliseconds()))) * time.Millisecond

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Channel = getEnv("REDIS_CHANNEL", cfg.Redis.Channel)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Database = getEnv("DB_NAME", "cohort")
	cfg.Database.Username = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", cfg.Database.MaxConnections)

	cfg.Registry.ArchiveDir = getEnv("ARCHIVE_DIR", cfg.Registry.ArchiveDir)

	return cfg
}

// createDatabasePoolFromConfig creates a PostgreSQL connection pool from config.
func createDatabasePoolFromConfig(config cohort.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
		config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.ConnConfig.ConnectTimeout = config.Timeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
