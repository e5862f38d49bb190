package startup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/connexus-ai/smartrag-orchestrator/internal/config"
	"github.com/connexus-ai/smartrag-orchestrator/internal/filewatcher"
	"github.com/connexus-ai/smartrag-orchestrator/internal/mcpclient"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
	"github.com/connexus-ai/smartrag-orchestrator/internal/service"
)

// Dependencies is everything the startup hook may need to wire, loaded
// ahead of time by the caller (main.go) from config and the three JSON
// config files.
type Dependencies struct {
	Config *config.Config

	McpClient      *mcpclient.Client
	McpServers     []model.McpServerConfig
	WatchedFolders []model.WatchedFolder
	Docs           repository.DocumentRepository
	Ingest         *service.IngestService
	Catalog        *schema.Catalog
	DatabaseConns  []model.DatabaseConnectionConfig
}

// Coordinator runs the single post-wiring lifecycle hook (C14). Stop
// releases whatever it started: watchers and MCP connections. Schema
// analysis is detached and is not waited on by Stop.
type Coordinator struct {
	deps     Dependencies
	watchers []*filewatcher.Watcher
	mu       sync.Mutex
}

// New builds a Coordinator. Call Start once, after every other component
// has been constructed.
func New(deps Dependencies) *Coordinator {
	return &Coordinator{deps: deps}
}

// Start runs the three startup steps in spec order. MCP connect failures
// and watcher start failures are logged and do not abort the remaining
// steps — a single misconfigured server or folder should not take down
// startup for every other one.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.deps.Config.EnableMcp {
		c.connectMcpServers(ctx)
	}

	if c.deps.Config.EnableFileWatcher && len(c.deps.WatchedFolders) > 0 {
		c.startFileWatcher(ctx)
	}

	if len(c.deps.DatabaseConns) > 0 {
		go func() {
			analyzeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			slog.Info("startup: schema analysis starting", "database_count", len(c.deps.DatabaseConns))
			c.deps.Catalog.AnalyzeAll(analyzeCtx)
			slog.Info("startup: schema analysis complete")
		}()
	}

	return nil
}

func (c *Coordinator) connectMcpServers(ctx context.Context) {
	var wg sync.WaitGroup
	for _, srv := range c.deps.McpServers {
		if !srv.AutoConnect {
			continue
		}
		wg.Add(1)
		go func(srv model.McpServerConfig) {
			defer wg.Done()
			if err := c.deps.McpClient.Connect(ctx, srv); err != nil {
				slog.Warn("startup: mcp auto-connect failed", "server_id", srv.ServerID, "error", err)
				return
			}
			slog.Info("startup: mcp auto-connect succeeded", "server_id", srv.ServerID)
		}(srv)
	}
	wg.Wait()
}

func (c *Coordinator) startFileWatcher(ctx context.Context) {
	w, err := filewatcher.New(filewatcher.Config{
		BaseDir:          c.deps.Config.WatchBaseDir,
		Debounce:         time.Duration(c.deps.Config.WatchDebounceMs) * time.Millisecond,
		MaxRetryAttempts: c.deps.Config.MaxRetryAttempts,
		RetryLinearDelay: time.Duration(c.deps.Config.WatchMaxRetryLinearMs) * time.Millisecond,
	}, c.deps.WatchedFolders, c.deps.Docs, c.deps.Ingest)
	if err != nil {
		slog.Error("startup: file watcher setup failed", "error", err)
		return
	}
	if err := w.Start(ctx); err != nil {
		slog.Error("startup: file watcher start failed", "error", err)
		return
	}
	c.mu.Lock()
	c.watchers = append(c.watchers, w)
	c.mu.Unlock()
	slog.Info("startup: file watcher armed", "folder_count", len(c.deps.WatchedFolders))
}

// Stop is a no-op for anything the startup hook didn't itself start; it
// only releases watchers and MCP connections made during Start.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	watchers := c.watchers
	c.watchers = nil
	c.mu.Unlock()

	for _, w := range watchers {
		if err := w.Stop(); err != nil {
			slog.Warn("startup: file watcher stop failed", "error", err)
		}
	}
	if c.deps.McpClient != nil {
		c.deps.McpClient.CloseAll()
	}
	return nil
}
