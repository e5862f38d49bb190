package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// sqliteIntrospector reads sqlite_master plus the pragma table functions
// (table_info/foreign_key_list), the only portable way to get column and
// foreign-key metadata from SQLite.
type sqliteIntrospector struct{}

func (sqliteIntrospector) Introspect(ctx context.Context, db *sql.DB) ([]model.TableInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("schema.sqliteIntrospector: list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schema.sqliteIntrospector: scan table: %w", err)
		}
		names = append(names, n)
	}
	rows.Close()

	tables := make([]model.TableInfo, 0, len(names))
	for _, name := range names {
		t, err := sqliteDescribeTable(ctx, db, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func sqliteDescribeTable(ctx context.Context, db *sql.DB, name string) (model.TableInfo, error) {
	t := model.TableInfo{Name: name}

	colRows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, name))
	if err != nil {
		return t, fmt.Errorf("schema.sqliteIntrospector: columns(%s): %w", name, err)
	}
	for colRows.Next() {
		var cid int
		var colName, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := colRows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			colRows.Close()
			return t, fmt.Errorf("schema.sqliteIntrospector: scan column(%s): %w", name, err)
		}
		c := model.ColumnInfo{
			Name:         colName,
			DataType:     colType,
			Nullable:     notNull == 0,
			IsPrimaryKey: pk > 0,
		}
		if c.IsPrimaryKey {
			t.PrimaryKeys = append(t.PrimaryKeys, colName)
		}
		t.Columns = append(t.Columns, c)
	}
	colRows.Close()

	fkRows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, name))
	if err != nil {
		return t, fmt.Errorf("schema.sqliteIntrospector: fks(%s): %w", name, err)
	}
	fkSet := make(map[string]bool)
	for fkRows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			fkRows.Close()
			return t, fmt.Errorf("schema.sqliteIntrospector: scan fk(%s): %w", name, err)
		}
		t.ForeignKeys = append(t.ForeignKeys, model.ForeignKeyInfo{
			Column:           from,
			ReferencedTable:  refTable,
			ReferencedColumn: to,
		})
		fkSet[from] = true
	}
	fkRows.Close()

	for i := range t.Columns {
		t.Columns[i].IsForeignKey = fkSet[t.Columns[i].Name]
	}

	var count int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&count); err == nil {
		t.ApproxRowCount = count
	}
	return t, nil
}
