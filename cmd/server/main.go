package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/smartrag-orchestrator/internal/aiprovider"
	"github.com/connexus-ai/smartrag-orchestrator/internal/cache"
	"github.com/connexus-ai/smartrag-orchestrator/internal/config"
	"github.com/connexus-ai/smartrag-orchestrator/internal/dbcoordinator"
	"github.com/connexus-ai/smartrag-orchestrator/internal/handler"
	"github.com/connexus-ai/smartrag-orchestrator/internal/mcpclient"
	appmw "github.com/connexus-ai/smartrag-orchestrator/internal/middleware"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/router"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
	"github.com/connexus-ai/smartrag-orchestrator/internal/service"
	"github.com/connexus-ai/smartrag-orchestrator/internal/startup"
)

const Version = "0.1.0"

// newRouter builds the bare liveness router used before the rest of the
// component graph exists (e.g. for a container orchestrator's startup
// probe) and in tests that don't want to stand up the full dependency
// graph.
func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, Version)
	})

	return r
}

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

// app bundles every live resource run() must release on shutdown.
type app struct {
	mux         http.Handler
	cleanup     func()
	dbCoord     *dbcoordinator.Coordinator
	mcpClient   *mcpclient.Client
	coordinator *startup.Coordinator
}

// buildApp wires the full component graph (C1-C15) from Config: the AI
// gateway, the Postgres-backed document/conversation stores, the
// chunking/embedding/ingest pipeline, the schema catalog and multi-database
// coordinator (when any database connections are configured), the MCP
// client, the query engine, and the HTTP handler/router layer on top —
// then runs the startup lifecycle hook (C14).
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	gateway, gatewayCleanup, err := aiprovider.NewGatewayFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("buildApp: %w", err)
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		gatewayCleanup()
		return nil, fmt.Errorf("buildApp: %w", err)
	}

	docs := repository.NewPgDocumentRepository(pool)
	conv := repository.NewPgConversationRepository(pool, cfg.MaxConversationLen)

	var embCache cache.QueryCache
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			pool.Close()
			gatewayCleanup()
			return nil, fmt.Errorf("buildApp: parsing REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		embCache = cache.NewRedisEmbeddingCache(redisClient, cache.DefaultEmbeddingTTL())
	} else {
		embCache = cache.NewEmbeddingCache(cache.DefaultEmbeddingTTL())
	}
	chunker := service.NewChunkerService(service.ChunkerConfig{
		MinChunkSize:     cfg.MinChunkSize,
		MaxChunkSize:     cfg.MaxChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		BoundaryLookback: cfg.BoundaryLookback,
	})
	embedder := service.NewEmbedderService(gateway, cfg.EmbeddingBatchMaxSize, embCache)
	ingest := service.NewIngestService(docs, chunker, embedder)

	intentAnalyzer := service.NewIntentAnalyzer(gateway)
	orchestrator := service.NewOrchestrator(docs, cfg.RouteToDocsThreshold)
	synth := service.NewSynthesizer(gateway, conv)
	silence := service.NewSilenceGate(cfg.SilenceConfidenceThresh)

	dbConns, err := startup.LoadDatabaseConnections(cfg.DatabaseConnectionsPath)
	if err != nil {
		pool.Close()
		gatewayCleanup()
		return nil, fmt.Errorf("buildApp: %w", err)
	}
	mcpServers, err := startup.LoadMcpServers(cfg.McpServersPath)
	if err != nil {
		pool.Close()
		gatewayCleanup()
		return nil, fmt.Errorf("buildApp: %w", err)
	}
	watchedFolders, err := startup.LoadWatchedFolders(cfg.WatchedFoldersPath)
	if err != nil {
		pool.Close()
		gatewayCleanup()
		return nil, fmt.Errorf("buildApp: %w", err)
	}

	var catalog *schema.Catalog
	var dbCoord *dbcoordinator.Coordinator
	if len(dbConns) > 0 {
		catalog = schema.NewCatalog(dbConns, nil)
		sqlGen := service.NewSQLGeneratorService(gateway)
		queryTimeout := time.Duration(cfg.QueryTimeoutSeconds) * time.Second
		dbCoord = dbcoordinator.New(catalog, sqlGen, dbConns, queryTimeout, nil)
	}

	mcpClient := mcpclient.New()

	registry := prometheus.NewRegistry()
	metrics := appmw.NewMetrics(registry)

	engine := service.NewEngine(service.EngineDeps{
		Intent:           intentAnalyzer,
		Orchestrator:     orchestrator,
		Embedder:         embedder,
		Docs:             docs,
		DBCoord:          dbCoord,
		Synth:            synth,
		Conv:             conv,
		Catalog:          catalog,
		Silence:          silence,
		Metrics:          metrics,
		Tools:            service.NewToolInvoker(mcpClient),
		DocumentsEnabled: cfg.EnableDocumentSearch,
		DatabasesEnabled: cfg.EnableDatabaseSearch,
		McpEnabled:       cfg.EnableMcp,
		EffectiveConfig: model.EffectiveConfig{
			AIProvider:      gateway.ActiveProviderName(),
			StorageProvider: "postgres",
			ModelName:       cfg.VertexAIModel,
		},
	})

	deps := &router.Dependencies{
		Config:        cfg,
		Metrics:       metrics,
		Reg:           registry,
		Documents:     handler.NewDocuments(docs, ingest),
		Chat:          handler.NewChat(engine, conv),
		QueryAnalysis: handler.NewQueryAnalysis(intentAnalyzer, dbCoord, catalog),
		AiPinger:      gateway,
		Conversation:  conv,
		Catalog:       catalog,
		Version:       Version,
	}
	mux := router.New(deps)

	coordinator := startup.New(startup.Dependencies{
		Config:         cfg,
		McpClient:      mcpClient,
		McpServers:     mcpServers,
		WatchedFolders: watchedFolders,
		Docs:           docs,
		Ingest:         ingest,
		Catalog:        catalog,
		DatabaseConns:  dbConns,
	})
	if err := coordinator.Start(ctx); err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		pool.Close()
		gatewayCleanup()
		return nil, fmt.Errorf("buildApp: startup: %w", err)
	}

	cleanup := func() {
		coordinator.Stop()
		if dbCoord != nil {
			if err := dbCoord.Close(); err != nil {
				slog.Warn("buildApp cleanup: database coordinator close failed", "error", err)
			}
		}
		mcpClient.CloseAll()
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				slog.Warn("buildApp cleanup: redis client close failed", "error", err)
			}
		}
		pool.Close()
		gatewayCleanup()
	}

	return &app{mux: mux, cleanup: cleanup, dbCoord: dbCoord, mcpClient: mcpClient, coordinator: coordinator}, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer a.cleanup()

	port := fmt.Sprintf("%d", cfg.Port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      a.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("smartrag-orchestrator v%s starting on port %s", Version, port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down gracefully", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
