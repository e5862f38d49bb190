package schema

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// Open returns an unopened-pool *sql.DB for cfg's dialect, selecting the
// driver name registered by each dialect's blank import above.
func Open(cfg model.DatabaseConnectionConfig) (*sql.DB, error) {
	driverName, err := driverFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("schema.Open: %w", err)
	}
	return db, nil
}

func driverFor(dialect model.DatabaseDialect) (string, error) {
	switch dialect {
	case model.DialectPostgreSQL:
		return "postgres", nil
	case model.DialectMySQL:
		return "mysql", nil
	case model.DialectSQLite:
		return "sqlite", nil
	case model.DialectSQLServer:
		return "sqlserver", nil
	default:
		return "", fmt.Errorf("schema.Open: unsupported dialect %q", dialect)
	}
}

// ForDialect returns the Introspector implementing the given dialect.
func ForDialect(dialect model.DatabaseDialect) (Introspector, error) {
	switch dialect {
	case model.DialectPostgreSQL:
		return postgresIntrospector{}, nil
	case model.DialectMySQL:
		return mysqlIntrospector{}, nil
	case model.DialectSQLite:
		return sqliteIntrospector{}, nil
	case model.DialectSQLServer:
		return sqlServerIntrospector{}, nil
	default:
		return nil, fmt.Errorf("schema.ForDialect: unsupported dialect %q", dialect)
	}
}
