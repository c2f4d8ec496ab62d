package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/adapters/datasource"
	"github.com/tessera-data/tessera-engine/pkg/adapters/datasource/postgres"
	"github.com/tessera-data/tessera-engine/pkg/adapters/datasource/sqlserver"
	"github.com/tessera-data/tessera-engine/pkg/classifier"
	"github.com/tessera-data/tessera-engine/pkg/config"
	"github.com/tessera-data/tessera-engine/pkg/handlers"
	"github.com/tessera-data/tessera-engine/pkg/llm"
	"github.com/tessera-data/tessera-engine/pkg/logging"
	enginemcp "github.com/tessera-data/tessera-engine/pkg/mcp"
	"github.com/tessera-data/tessera-engine/pkg/models"
	"github.com/tessera-data/tessera-engine/pkg/pipeline"
	"github.com/tessera-data/tessera-engine/pkg/schemacache"
	"github.com/tessera-data/tessera-engine/pkg/services"
	"github.com/tessera-data/tessera-engine/pkg/sqlguard"
)

// Version is set at build time via ldflags
var Version = "dev"

// cacheKey identifies the single configured datasource in the schema
// cache. Multi-datasource keying can reuse the same cache unchanged.
const cacheKey = "primary"

// cachedSchemaProvider adapts the schema cache to the pipeline's
// SchemaProvider interface for the configured datasource.
type cachedSchemaProvider struct {
	cache *schemacache.Cache
}

func (p *cachedSchemaProvider) Snapshot(ctx context.Context) (*models.SchemaSnapshot, bool, error) {
	return p.cache.Get(ctx, cacheKey)
}

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database_type", cfg.Database.Type),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	ctx := context.Background()

	fetcher, executor, dialect, err := buildDatasource(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to datasource", zap.Error(err))
	}
	defer func() { _ = executor.Close() }()
	defer func() { _ = fetcher.Close() }()

	cacheOpts := []schemacache.Option{
		schemacache.WithTTL(cfg.Cache.TTL()),
		schemacache.WithRefreshTimeout(cfg.Cache.RefreshTimeout()),
	}
	if cfg.Cache.PersistDir != "" {
		cacheOpts = append(cacheOpts, schemacache.WithPersistDir(cfg.Cache.PersistDir))
	}
	cache := schemacache.New(
		func(ctx context.Context, _ string) (*models.SchemaSnapshot, error) {
			return fetcher.FetchSchema(ctx)
		},
		logger, cacheOpts...)
	if err := cache.WarmStart(cacheKey); err != nil {
		logger.Warn("schema warm start failed", zap.Error(err))
	}
	schemaProvider := &cachedSchemaProvider{cache: cache}

	llmClient, err := llm.NewClientFromConfig(cfg.LLM, logger)
	if err != nil {
		logger.Fatal("failed to create llm client", zap.Error(err))
	}

	policy := sqlguard.DefaultPolicy(dialect, cfg.Pipeline.MaxRows)
	policy.AllowWrite = cfg.Pipeline.AllowWrite
	policy.RequireRowLimit = cfg.Pipeline.RequireRowLimit

	runner := pipeline.NewRunner(
		schemaProvider,
		services.NewSQLGenerationService(llmClient, cfg.LLM.Temperature, logger),
		services.NewInterpretationService(llmClient, logger),
		executor,
		policy,
		classifier.New(classifier.Thresholds{
			MaxBarRows:       cfg.Classifier.MaxBarRows,
			MaxPieCategories: cfg.Classifier.MaxPieCategories,
		}),
		pipeline.RunnerConfig{
			MaxValidationAttempts: cfg.Pipeline.MaxValidationAttempts,
			QueryTimeout:          cfg.Pipeline.QueryTimeout(),
			Dialect:               cfg.Database.Type,
		},
		logger,
	)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewQuestionHandler(runner, logger).RegisterRoutes(mux)

	mcpServer := enginemcp.NewServer("tessera-engine", cfg.Version, logger)
	enginemcp.RegisterTools(mcpServer, &enginemcp.ToolDeps{
		Runner: runner,
		Schema: schemaProvider,
		Logger: logger,
	})
	mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())

	addr := cfg.BindAddr + ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting tessera-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildDatasource connects the schema fetcher and query executor for the
// configured database type.
func buildDatasource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (datasource.SchemaFetcher, datasource.QueryExecutor, sqlguard.Dialect, error) {
	switch cfg.Database.Type {
	case config.DBTypeSQLServer:
		dbCfg := &sqlserver.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
		}
		fetcher, err := sqlserver.NewSchemaFetcher(ctx, dbCfg, logger)
		if err != nil {
			return nil, nil, "", err
		}
		executor, err := sqlserver.NewExecutor(ctx, dbCfg)
		if err != nil {
			_ = fetcher.Close()
			return nil, nil, "", err
		}
		return fetcher, executor, sqlguard.DialectSQLServer, nil
	default:
		dbCfg := &postgres.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		}
		fetcher, err := postgres.NewSchemaFetcher(ctx, dbCfg, logger)
		if err != nil {
			return nil, nil, "", err
		}
		executor, err := postgres.NewExecutor(ctx, dbCfg)
		if err != nil {
			_ = fetcher.Close()
			return nil, nil, "", err
		}
		return fetcher, executor, sqlguard.DialectPostgres, nil
	}
}
