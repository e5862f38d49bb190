// Package dbcoordinator runs the end-to-end multi-database query pipeline:
// intent already classified, generate SQL for every targeted database,
// dialect-format and validate each statement, execute all of them in
// parallel under one deadline, and merge the per-database results back
// into one ordered, human-readable block.
package dbcoordinator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/promptbuilder"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
	"github.com/connexus-ai/smartrag-orchestrator/internal/sqldialect"
	"github.com/connexus-ai/smartrag-orchestrator/internal/sqlvalidate"
)

// SQLGenerator asks the AI gateway for one SQL statement per
// DatabaseQueryIntent, given the assembled system/user prompt pair. It
// returns a map keyed by DatabaseID.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, systemPrompt, userPrompt string) (map[string]string, error)
}

// Result is the per-database outcome of one coordinated query.
type Result struct {
	DatabaseID   string
	DatabaseName string
	Priority     int
	Success      bool
	SQL          string
	Rendered     string
	RowCount     int
	Error        string
	Duration     time.Duration
}

// Coordinator wires the schema catalog, SQL generation, dialect
// strategies, validator and a pool of live connections together.
type Coordinator struct {
	catalog      *schema.Catalog
	generator    SQLGenerator
	queryTimeout time.Duration
	opener       func(model.DatabaseConnectionConfig) (*sql.DB, error)
	conns        map[string]model.DatabaseConnectionConfig

	mu   sync.Mutex
	pool map[string]*sql.DB
}

// New builds a Coordinator. opener defaults to schema.Open when nil.
func New(catalog *schema.Catalog, generator SQLGenerator, conns []model.DatabaseConnectionConfig, queryTimeout time.Duration, opener func(model.DatabaseConnectionConfig) (*sql.DB, error)) *Coordinator {
	connMap := make(map[string]model.DatabaseConnectionConfig, len(conns))
	for _, c := range conns {
		connMap[c.ID] = c
	}
	if opener == nil {
		opener = schema.Open
	}
	return &Coordinator{
		catalog:      catalog,
		generator:    generator,
		queryTimeout: queryTimeout,
		opener:       opener,
		conns:        connMap,
		pool:         make(map[string]*sql.DB),
	}
}

func (c *Coordinator) connFor(id string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.pool[id]; ok {
		return db, nil
	}
	cfg, ok := c.conns[id]
	if !ok {
		return nil, fmt.Errorf("dbcoordinator.connFor: unknown database %q", id)
	}
	db, err := c.opener(cfg)
	if err != nil {
		return nil, fmt.Errorf("dbcoordinator.connFor: %w", err)
	}
	c.pool[id] = db
	return db, nil
}

// Close releases every pooled connection. Safe to call once at shutdown.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, db := range c.pool {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("dbcoordinator.Close(%s): %w", id, err)
		}
	}
	return firstErr
}

// Execute runs the full pipeline for an already-classified QueryIntent and
// returns the merged per-database results, still ordered by the intent's
// declared priority.
func (c *Coordinator) Execute(ctx context.Context, intent *model.QueryIntent) ([]Result, error) {
	if !intent.HasDatabaseTargets() {
		return nil, nil
	}

	schemas := make([]model.DatabaseSchemaInfo, 0, len(intent.DatabaseIntents))
	dialects := make([]model.DatabaseDialect, 0, len(intent.DatabaseIntents))
	for _, di := range intent.DatabaseIntents {
		if s := c.catalog.Get(di.DatabaseID); s != nil {
			schemas = append(schemas, *s)
			dialects = append(dialects, s.Type)
		}
	}

	sqlByDB, err := c.generateSQL(ctx, intent.OriginalQuery, schemas, dialects)
	if err != nil {
		return nil, fmt.Errorf("dbcoordinator.Execute: generate: %w", err)
	}

	allTableNames := make(map[string][]string, len(schemas))
	schemaByID := make(map[string]*model.DatabaseSchemaInfo, len(schemas))
	for i := range schemas {
		s := schemas[i]
		var names []string
		for _, t := range s.Tables {
			names = append(names, t.Name)
		}
		allTableNames[s.Name] = names
		schemaByID[s.ID] = &schemas[i]
	}

	prepared := make([]preparedQuery, 0, len(intent.DatabaseIntents))
	for _, di := range intent.DatabaseIntents {
		s, ok := schemaByID[di.DatabaseID]
		if !ok {
			prepared = append(prepared, preparedQuery{intent: di, err: fmt.Sprintf("database %s not found in schema catalog or failed analysis", di.DatabaseName)})
			continue
		}
		statement, ok := sqlByDB[di.DatabaseID]
		if !ok || strings.TrimSpace(statement) == "" {
			prepared = append(prepared, preparedQuery{intent: di, err: "no SQL generated for this database"})
			continue
		}

		strategy, err := sqldialect.ForDialect(s.Type)
		if err != nil {
			prepared = append(prepared, preparedQuery{intent: di, err: err.Error()})
			continue
		}

		statement = formatAndValidate(strategy, s, di, allTableNames, statement)
		if statement == "" {
			prepared = append(prepared, preparedQuery{intent: di, err: "SQL failed dialect validation and could not be repaired"})
			continue
		}
		prepared = append(prepared, preparedQuery{intent: di, sql: statement})
	}

	results := c.executeAll(ctx, prepared)

	sort.Slice(results, func(i, j int) bool { return results[i].Priority > results[j].Priority })
	slog.Debug("dbcoordinator.Execute: merged results", "query", intent.OriginalQuery, "merged", Merge(results))
	return results, nil
}

type preparedQuery struct {
	intent model.DatabaseQueryIntent
	sql    string
	err    string
}

// formatAndValidate validates the statement against the schema and the
// dialect's keyword/structure rules, and on failure attempts one
// rule-based repair pass before giving up. It adds no limit clause; the
// statement's own row limit, if any, is kept as generated.
func formatAndValidate(strategy sqldialect.Strategy, s *model.DatabaseSchemaInfo, di model.DatabaseQueryIntent, allTableNames map[string][]string, statement string) string {
	findings := sqlvalidate.Validate(statement, s, di.RequiredTables, allTableNames)
	if !sqlvalidate.HasErrors(findings) && len(strategy.Validate(statement)) == 0 {
		return statement
	}

	repaired := strategy.Repair(statement, s.Tables)
	findings = sqlvalidate.Validate(repaired, s, di.RequiredTables, allTableNames)
	if sqlvalidate.HasErrors(findings) || len(strategy.Validate(repaired)) > 0 {
		return ""
	}
	return repaired
}

// generateSQL builds the multi-database prompt and asks the AI gateway for
// one SQL statement per database. A call that fails or returns no entries
// is retried once with a stricter instruction; a response that covers only
// some of the databases is not retried.
func (c *Coordinator) generateSQL(ctx context.Context, query string, schemas []model.DatabaseSchemaInfo, dialects []model.DatabaseDialect) (map[string]string, error) {
	system := promptbuilder.BuildSQLSystemMessage(schemas)
	user := promptbuilder.BuildSQLUserMessage(query, dialects, nil)

	result, err := c.generator.GenerateSQL(ctx, system, user)
	if err == nil && len(result) > 0 {
		return result, nil
	}

	strictUser := user + "\n\nYour previous response was malformed or incomplete. Respond with exactly one JSON object per database, no prose, no markdown fences."
	result, err = c.generator.GenerateSQL(ctx, system, strictUser)
	if err != nil {
		return nil, fmt.Errorf("retry after malformed response: %w", err)
	}
	return result, nil
}

// executeAll dispatches every prepared query concurrently under
// queryTimeout, canceling all outstanding executions the moment the
// deadline expires. A per-database failure (including a pre-existing
// formatting/validation error) is recorded in its own Result and never
// aborts the others.
func (c *Coordinator) executeAll(ctx context.Context, prepared []preparedQuery) []Result {
	deadline := c.queryTimeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	results := make([]Result, len(prepared))
	g, gCtx := errgroup.WithContext(execCtx)

	for i, p := range prepared {
		i, p := i, p
		results[i] = Result{DatabaseID: p.intent.DatabaseID, DatabaseName: p.intent.DatabaseName, Priority: p.intent.Priority, SQL: p.sql}
		if p.err != "" {
			results[i].Error = p.err
			continue
		}
		g.Go(func() error {
			results[i] = c.executeOne(gCtx, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Coordinator) executeOne(ctx context.Context, p preparedQuery) Result {
	start := time.Now()
	res := Result{DatabaseID: p.intent.DatabaseID, DatabaseName: p.intent.DatabaseName, Priority: p.intent.Priority, SQL: p.sql}

	db, err := c.connFor(p.intent.DatabaseID)
	if err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}

	rows, err := db.QueryContext(ctx, p.sql)
	if err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		slog.Warn("dbcoordinator.executeOne: query failed", "database", p.intent.DatabaseName, "error", err)
		return res
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}

	var rendered [][]string
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			res.Error = err.Error()
			res.Duration = time.Since(start)
			return res
		}
		row := make([]string, len(columns))
		for i, v := range raw {
			row[i] = fmt.Sprintf("%v", v)
		}
		rendered = append(rendered, row)
	}
	if err := rows.Err(); err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}

	res.Success = true
	res.RowCount = len(rendered)
	res.Rendered = promptbuilder.RenderDatabaseTable(columns, rendered)
	res.Duration = time.Since(start)
	return res
}

// PreparedSQL is one database's generated-and-validated (but not executed)
// statement, the shape the query-inspection endpoint returns.
type PreparedSQL struct {
	DatabaseID   string `json:"databaseId"`
	DatabaseName string `json:"databaseName"`
	Priority     int    `json:"priority"`
	SQL          string `json:"sql,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Prepare runs steps 2-3 of the pipeline (generate, dialect-format,
// validate, repair-on-failure) without executing anything. It backs the
// query-analysis inspection endpoint, which reports what SQL would run
// without running it.
func (c *Coordinator) Prepare(ctx context.Context, intent *model.QueryIntent) ([]PreparedSQL, error) {
	if !intent.HasDatabaseTargets() {
		return nil, nil
	}

	schemas := make([]model.DatabaseSchemaInfo, 0, len(intent.DatabaseIntents))
	dialects := make([]model.DatabaseDialect, 0, len(intent.DatabaseIntents))
	for _, di := range intent.DatabaseIntents {
		if s := c.catalog.Get(di.DatabaseID); s != nil {
			schemas = append(schemas, *s)
			dialects = append(dialects, s.Type)
		}
	}

	sqlByDB, err := c.generateSQL(ctx, intent.OriginalQuery, schemas, dialects)
	if err != nil {
		return nil, fmt.Errorf("dbcoordinator.Prepare: generate: %w", err)
	}

	allTableNames := make(map[string][]string, len(schemas))
	schemaByID := make(map[string]*model.DatabaseSchemaInfo, len(schemas))
	for i := range schemas {
		s := schemas[i]
		var names []string
		for _, t := range s.Tables {
			names = append(names, t.Name)
		}
		allTableNames[s.Name] = names
		schemaByID[s.ID] = &schemas[i]
	}

	out := make([]PreparedSQL, 0, len(intent.DatabaseIntents))
	for _, di := range intent.DatabaseIntents {
		p := PreparedSQL{DatabaseID: di.DatabaseID, DatabaseName: di.DatabaseName, Priority: di.Priority}
		s, ok := schemaByID[di.DatabaseID]
		if !ok {
			p.Error = fmt.Sprintf("database %s not found in schema catalog or failed analysis", di.DatabaseName)
			out = append(out, p)
			continue
		}
		statement, ok := sqlByDB[di.DatabaseID]
		if !ok || strings.TrimSpace(statement) == "" {
			p.Error = "no SQL generated for this database"
			out = append(out, p)
			continue
		}
		strategy, err := sqldialect.ForDialect(s.Type)
		if err != nil {
			p.Error = err.Error()
			out = append(out, p)
			continue
		}
		statement = formatAndValidate(strategy, s, di, allTableNames, statement)
		if statement == "" {
			p.Error = "SQL failed dialect validation and could not be repaired"
			out = append(out, p)
			continue
		}
		p.SQL = statement
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// Merge composes a human-readable block per database, preserving the
// priority ordering Execute already sorted by. Errors surface as
// annotated sections; no de-duplication happens across databases.
func Merge(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "### %s\n", r.DatabaseName)
		if !r.Success {
			fmt.Fprintf(&b, "(query failed: %s)\n\n", r.Error)
			continue
		}
		b.WriteString(r.Rendered)
		b.WriteString("\n")
	}
	return b.String()
}
