package config

import (
	"fmt"
	"os"
	"strconv"
)

// RetryPolicy names one of the three backoff shapes a provider call may use.
type RetryPolicy string

const (
	RetryFixed       RetryPolicy = "fixed"
	RetryLinear      RetryPolicy = "linear"
	RetryExponential RetryPolicy = "exponential-backoff"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port        int
	Environment string
	BasePath    string

	DatabaseURL      string
	DatabaseMaxConns int

	// RedisURL backs the embedding cache (C2) when set; an empty value
	// falls back to the in-process cache, since Redis is an optional
	// scale-out concern, not a correctness requirement.
	RedisURL string

	GCPProject        string
	GCPRegion         string
	VertexAILocation  string
	VertexAIModel     string
	EmbeddingLocation string
	EmbeddingModel    string

	EmbeddingDimensions    int
	EmbeddingBatchMaxSize  int
	EmbeddingMinIntervalMs int

	EnableFallbackProviders bool
	OpenAIAPIKey            string
	OpenAIModel             string

	MaxRetryAttempts int
	RetryDelayMs     int
	RetryPolicy      RetryPolicy

	MinChunkSize     int
	MaxChunkSize     int
	ChunkOverlap     int
	BoundaryLookback int

	RouteToDocsThreshold    float64
	SilenceConfidenceThresh float64
	SelfRAGMaxIterations    int

	QueryTimeoutSeconds int
	MaxConversationLen  int

	InternalAuthSecret string
	FrontendURL        string

	DatabaseConnectionsPath string
	McpServersPath          string
	WatchedFoldersPath      string

	WatchBaseDir          string
	WatchDebounceMs       int
	WatchMaxRetryLinearMs int

	// EnableDocumentSearch/EnableDatabaseSearch/EnableMcp gate the three
	// knowledge sources the Strategy Orchestrator (C11) routes across.
	// EnableMcp is the single flag unifying what upstream split across
	// an "is the client connected" flag and a separate "is MCP search
	// allowed" flag — one toggle controls both auto-connect at startup
	// and whether the orchestrator treats MCP as additive.
	EnableDocumentSearch bool
	EnableDatabaseSearch bool
	EnableMcp            bool
	EnableFileWatcher    bool
}

// Load reads configuration from environment variables. Required variables
// (DATABASE_URL, GOOGLE_CLOUD_PROJECT) cause an error if missing. Optional
// variables use sensible defaults.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		Port:        envInt("PORT", 8080),
		Environment: envStr("ENVIRONMENT", "development"),
		BasePath:    envStr("BASE_PATH", "/smartrag"),

		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),
		RedisURL:         envStr("REDIS_URL", ""),

		GCPProject:        gcpProject,
		GCPRegion:         envStr("GCP_REGION", "us-east4"),
		VertexAILocation:  envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:     envStr("VERTEX_AI_MODEL", "gemini-3-pro-preview"),
		EmbeddingLocation: envStr("VERTEX_AI_EMBEDDING_LOCATION", envStr("GCP_REGION", "us-east4")),
		EmbeddingModel:    envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),

		EmbeddingDimensions:    envInt("EMBEDDING_DIMENSIONS", 768),
		EmbeddingBatchMaxSize:  envInt("EMBEDDING_BATCH_MAX_SIZE", 250),
		EmbeddingMinIntervalMs: envInt("EMBEDDING_MIN_INTERVAL_MS", 0),

		EnableFallbackProviders: envBool("ENABLE_FALLBACK_PROVIDERS", false),
		OpenAIAPIKey:            envStr("OPENAI_API_KEY", ""),
		OpenAIModel:             envStr("OPENAI_MODEL", "gpt-4o-mini"),

		MaxRetryAttempts: envInt("MAX_RETRY_ATTEMPTS", 3),
		RetryDelayMs:     envInt("RETRY_DELAY_MS", 500),
		RetryPolicy:      RetryPolicy(envStr("RETRY_POLICY", string(RetryExponential))),

		MinChunkSize:     envInt("MIN_CHUNK_SIZE", 200),
		MaxChunkSize:     envInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap:     envInt("CHUNK_OVERLAP", 100),
		BoundaryLookback: envInt("CHUNK_BOUNDARY_LOOKBACK", 80),

		RouteToDocsThreshold:    envFloat("ROUTE_TO_DOCS_THRESHOLD", 0.5),
		SilenceConfidenceThresh: envFloat("SILENCE_CONFIDENCE_THRESHOLD", 0.60),
		SelfRAGMaxIterations:    envInt("SELF_RAG_MAX_ITERATIONS", 1),

		QueryTimeoutSeconds: envInt("QUERY_TIMEOUT_SECONDS", 30),
		MaxConversationLen:  envInt("MAX_CONVERSATION_LENGTH", 50),

		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),
		FrontendURL:        envStr("FRONTEND_URL", "http://localhost:3000"),

		DatabaseConnectionsPath: envStr("DATABASE_CONNECTIONS_CONFIG", ""),
		McpServersPath:          envStr("MCP_SERVERS_CONFIG", ""),
		WatchedFoldersPath:      envStr("WATCHED_FOLDERS_CONFIG", ""),

		WatchBaseDir:          envStr("WATCH_BASE_DIR", "./data"),
		WatchDebounceMs:       envInt("WATCH_DEBOUNCE_MS", 750),
		WatchMaxRetryLinearMs: envInt("WATCH_RETRY_LINEAR_MS", 1000),

		EnableDocumentSearch: envBool("ENABLE_DOCUMENT_SEARCH", true),
		EnableDatabaseSearch: envBool("ENABLE_DATABASE_SEARCH", true),
		EnableMcp:            envBool("ENABLE_MCP", false),
		EnableFileWatcher:    envBool("ENABLE_FILE_WATCHER", false),
	}

	if err := cfg.validateRetryPolicy(); err != nil {
		return nil, err
	}

	// Internal auth secret is required in non-development environments.
	if cfg.Environment != "development" && cfg.InternalAuthSecret == "" {
		return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func (c *Config) validateRetryPolicy() error {
	switch c.RetryPolicy {
	case RetryFixed, RetryLinear, RetryExponential:
		return nil
	default:
		return fmt.Errorf("config.Load: RETRY_POLICY %q must be one of fixed, linear, exponential-backoff", c.RetryPolicy)
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
