// Package schema introspects configured databases and caches the result:
// tables, columns, primary keys, foreign keys and approximate row counts,
// per dialect (SQLite, SQL Server, MySQL, PostgreSQL).
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// Introspector is the per-dialect introspection contract: list tables,
// describe columns/keys, and estimate row counts for one open connection.
type Introspector interface {
	Introspect(ctx context.Context, db *sql.DB) ([]model.TableInfo, error)
}

// Catalog is the read-mostly singleton schema cache: one entry per
// configured database, filled by startup analysis and re-analyzed only
// when Refresh is called (there is no periodic refresh), and read by every
// request that needs routing or prompt-building context. A single
// sync.RWMutex guards the map; cold analysis runs hold no lock while they
// query the remote database, only while swapping in the result.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*model.DatabaseSchemaInfo
	conns   map[string]model.DatabaseConnectionConfig
	opener  func(cfg model.DatabaseConnectionConfig) (*sql.DB, error)
}

// NewCatalog builds an empty Catalog for the given connection configs.
// opener is injected so tests can substitute a fake *sql.DB source; in
// production it is Open from this package.
func NewCatalog(conns []model.DatabaseConnectionConfig, opener func(model.DatabaseConnectionConfig) (*sql.DB, error)) *Catalog {
	connMap := make(map[string]model.DatabaseConnectionConfig, len(conns))
	entries := make(map[string]*model.DatabaseSchemaInfo, len(conns))
	for _, c := range conns {
		connMap[c.ID] = c
		entries[c.ID] = &model.DatabaseSchemaInfo{
			ID:     c.ID,
			Name:   c.Name,
			Type:   c.Type,
			Status: model.AnalysisPending,
		}
	}
	if opener == nil {
		opener = Open
	}
	return &Catalog{entries: entries, conns: connMap, opener: opener}
}

// Get returns a copy of the cached entry for id, or nil if unknown.
func (c *Catalog) Get(id string) *model.DatabaseSchemaInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

// All returns a copy of every cached entry, in no particular order.
func (c *Catalog) All() []model.DatabaseSchemaInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.DatabaseSchemaInfo, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	return out
}

// Routable returns the IDs of databases whose last analysis completed
// successfully — the only ones the coordinator may route queries to.
func (c *Catalog) Routable() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, e := range c.entries {
		if e.Status == model.AnalysisCompleted {
			ids = append(ids, id)
		}
	}
	return ids
}

// AnalyzeAll runs Analyze for every enabled configured database
// concurrently. Called once from the startup coordinator; failures are
// logged and recorded per-database, never aborting the others.
func (c *Catalog) AnalyzeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for id, cfg := range c.conns {
		if !cfg.Enabled {
			continue
		}
		wg.Add(1)
		go func(id string, cfg model.DatabaseConnectionConfig) {
			defer wg.Done()
			c.Analyze(ctx, id)
		}(id, cfg)
	}
	wg.Wait()
}

// Analyze introspects one database and swaps in the result. On failure the
// entry's Status becomes Failed with the error recorded, but the database
// stays in conns (so connection validation can still reach it) — it is
// simply excluded from Routable.
func (c *Catalog) Analyze(ctx context.Context, id string) {
	cfg, ok := c.conns[id]
	if !ok {
		return
	}

	db, err := c.opener(cfg)
	if err != nil {
		c.setFailed(id, cfg, fmt.Errorf("schema.Catalog.Analyze: open: %w", err))
		return
	}
	defer db.Close()

	introspector, err := ForDialect(cfg.Type)
	if err != nil {
		c.setFailed(id, cfg, err)
		return
	}

	tables, err := introspector.Introspect(ctx, db)
	if err != nil {
		c.setFailed(id, cfg, fmt.Errorf("schema.Catalog.Analyze: introspect: %w", err))
		return
	}

	var total int64
	for _, t := range tables {
		total += t.ApproxRowCount
	}

	c.mu.Lock()
	c.entries[id] = &model.DatabaseSchemaInfo{
		ID:            id,
		Name:          cfg.Name,
		Type:          cfg.Type,
		LastAnalyzed:  time.Now().UTC(),
		Tables:        tables,
		TotalRowCount: total,
		Status:        model.AnalysisCompleted,
	}
	c.mu.Unlock()
	slog.Info("schema.Catalog.Analyze: completed", "database", cfg.Name, "tables", len(tables))
}

func (c *Catalog) setFailed(id string, cfg model.DatabaseConnectionConfig, err error) {
	c.mu.Lock()
	c.entries[id] = &model.DatabaseSchemaInfo{
		ID:           id,
		Name:         cfg.Name,
		Type:         cfg.Type,
		LastAnalyzed: time.Now().UTC(),
		Status:       model.AnalysisFailed,
		Error:        err.Error(),
	}
	c.mu.Unlock()
	slog.Warn("schema.Catalog.Analyze: failed, database remains queryable but excluded from routing", "database", cfg.Name, "error", err)
}

// Refresh re-analyzes one database on demand (the administrator-triggered
// refresh API). It is not required for correctness — AnalyzeAll already
// primes every entry at startup — but lets stale entries be forced current.
func (c *Catalog) Refresh(ctx context.Context, id string) {
	c.Analyze(ctx, id)
}
