package dbcoordinator

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
)

type fakeGenerator struct {
	result map[string]string
	err    error
	calls  int
}

func (f *fakeGenerator) GenerateSQL(ctx context.Context, system, user string) (map[string]string, error) {
	f.calls++
	return f.result, f.err
}

func seededSQLiteCatalog(t *testing.T, conns []model.DatabaseConnectionConfig) (*schema.Catalog, func(model.DatabaseConnectionConfig) (*sql.DB, error)) {
	t.Helper()
	dbs := make(map[string]*sql.DB)
	for _, c := range conns {
		db, err := sql.Open("sqlite", "file:"+c.ID+"?mode=memory&cache=shared")
		if err != nil {
			t.Fatalf("open %s: %v", c.ID, err)
		}
		if _, err := db.Exec("CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL)"); err != nil {
			t.Fatalf("create table: %v", err)
		}
		if _, err := db.Exec("INSERT INTO orders (id, total) VALUES (1, 99.5), (2, 42.0)"); err != nil {
			t.Fatalf("seed: %v", err)
		}
		dbs[c.ID] = db
	}
	opener := func(cfg model.DatabaseConnectionConfig) (*sql.DB, error) {
		if db, ok := dbs[cfg.ID]; ok {
			return db, nil
		}
		return nil, errors.New("no such database")
	}
	catalog := schema.NewCatalog(conns, opener)
	catalog.AnalyzeAll(context.Background())
	return catalog, opener
}

func TestExecute_NoDatabaseTargetsReturnsEarly(t *testing.T) {
	c := New(schema.NewCatalog(nil, nil), &fakeGenerator{}, nil, time.Second, nil)
	results, err := c.Execute(context.Background(), &model.QueryIntent{})
	if err != nil || results != nil {
		t.Fatalf("expected nil/nil, got %v, %v", results, err)
	}
}

func TestExecute_HappyPath(t *testing.T) {
	conns := []model.DatabaseConnectionConfig{{ID: "db1", Name: "Sales", Type: model.DialectSQLite, Enabled: true}}
	catalog, opener := seededSQLiteCatalog(t, conns)
	gen := &fakeGenerator{result: map[string]string{"db1": "SELECT id, total FROM orders"}}
	c := New(catalog, gen, conns, time.Second, opener)

	intent := &model.QueryIntent{
		OriginalQuery: "show me all orders",
		DatabaseIntents: []model.DatabaseQueryIntent{
			{DatabaseID: "db1", DatabaseName: "Sales", RequiredTables: []string{"orders"}, Priority: 1},
		},
	}

	results, err := c.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("expected success, got error %q", results[0].Error)
	}
	if results[0].RowCount != 2 {
		t.Errorf("expected 2 rows, got %d", results[0].RowCount)
	}
}

func TestExecute_GeneratorFailureIsFatal(t *testing.T) {
	conns := []model.DatabaseConnectionConfig{{ID: "db1", Name: "Sales", Type: model.DialectSQLite, Enabled: true}}
	catalog, opener := seededSQLiteCatalog(t, conns)
	gen := &fakeGenerator{err: errors.New("provider unavailable")}
	c := New(catalog, gen, conns, time.Second, opener)

	intent := &model.QueryIntent{
		DatabaseIntents: []model.DatabaseQueryIntent{{DatabaseID: "db1", DatabaseName: "Sales", Priority: 1}},
	}
	_, err := c.Execute(context.Background(), intent)
	if err == nil {
		t.Fatal("expected error when SQL generation fails on both attempts")
	}
	if gen.calls != 2 {
		t.Errorf("expected one retry after malformed/failed response, got %d calls", gen.calls)
	}
}

func TestExecute_OneDatabaseFailureDoesNotAbortSiblings(t *testing.T) {
	conns := []model.DatabaseConnectionConfig{
		{ID: "db1", Name: "Sales", Type: model.DialectSQLite, Enabled: true},
		{ID: "db2", Name: "HR", Type: model.DialectSQLite, Enabled: true},
	}
	catalog, opener := seededSQLiteCatalog(t, conns)
	gen := &fakeGenerator{result: map[string]string{
		"db1": "SELECT id, total FROM orders",
		"db2": "SELECT * FROM nonexistent_table",
	}}
	c := New(catalog, gen, conns, time.Second, opener)

	intent := &model.QueryIntent{
		DatabaseIntents: []model.DatabaseQueryIntent{
			{DatabaseID: "db1", DatabaseName: "Sales", RequiredTables: []string{"orders"}, Priority: 1},
			{DatabaseID: "db2", DatabaseName: "HR", RequiredTables: []string{"orders"}, Priority: 2},
		},
	}

	results, err := c.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	var sawSuccess, sawFailure bool
	for _, r := range results {
		if r.DatabaseID == "db1" && r.Success {
			sawSuccess = true
		}
		if r.DatabaseID == "db2" && !r.Success {
			sawFailure = true
		}
	}
	if !sawSuccess {
		t.Error("expected db1 to still succeed despite db2 failing validation")
	}
	if !sawFailure {
		t.Error("expected db2 to fail validation (unknown table) without aborting db1")
	}
}

func TestExecute_PriorityOrdering(t *testing.T) {
	conns := []model.DatabaseConnectionConfig{
		{ID: "db1", Name: "Low", Type: model.DialectSQLite, Enabled: true},
		{ID: "db2", Name: "High", Type: model.DialectSQLite, Enabled: true},
	}
	catalog, opener := seededSQLiteCatalog(t, conns)
	gen := &fakeGenerator{result: map[string]string{
		"db1": "SELECT id FROM orders",
		"db2": "SELECT id FROM orders",
	}}
	c := New(catalog, gen, conns, time.Second, opener)

	intent := &model.QueryIntent{
		DatabaseIntents: []model.DatabaseQueryIntent{
			{DatabaseID: "db1", DatabaseName: "Low", RequiredTables: []string{"orders"}, Priority: 1},
			{DatabaseID: "db2", DatabaseName: "High", RequiredTables: []string{"orders"}, Priority: 5},
		},
	}
	results, err := c.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].DatabaseID != "db2" {
		t.Errorf("expected higher-priority database first, got %s", results[0].DatabaseID)
	}
}

func TestMerge_AnnotatesFailuresAndPreservesOrder(t *testing.T) {
	results := []Result{
		{DatabaseName: "Sales", Success: true, Rendered: "id | total\n1 | 99.5\n(1 rows)"},
		{DatabaseName: "HR", Success: false, Error: "unknown table"},
	}
	out := Merge(results)
	if !strings.Contains(out, "Sales") || !strings.Contains(out, "HR") {
		t.Errorf("expected both database names present, got %q", out)
	}
	if !strings.Contains(out, "query failed: unknown table") {
		t.Errorf("expected failure annotation, got %q", out)
	}
	salesIdx := strings.Index(out, "Sales")
	hrIdx := strings.Index(out, "HR")
	if salesIdx > hrIdx {
		t.Error("expected Sales block before HR block")
	}
}

func TestExecute_MissingDatabaseInCatalogIsNonFatal(t *testing.T) {
	conns := []model.DatabaseConnectionConfig{{ID: "db1", Name: "Sales", Type: model.DialectSQLite, Enabled: true}}
	catalog, opener := seededSQLiteCatalog(t, conns)
	gen := &fakeGenerator{result: map[string]string{"db1": "SELECT id FROM orders", "ghost": "SELECT 1"}}
	c := New(catalog, gen, conns, time.Second, opener)

	intent := &model.QueryIntent{
		DatabaseIntents: []model.DatabaseQueryIntent{
			{DatabaseID: "db1", DatabaseName: "Sales", RequiredTables: []string{"orders"}, Priority: 1},
			{DatabaseID: "ghost", DatabaseName: "Ghost", Priority: 1},
		},
	}
	results, err := c.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.DatabaseID == "ghost" && r.Success {
			t.Error("expected ghost database to fail, not present in catalog")
		}
	}
}
