package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// mysqlIntrospector reads information_schema, scoped to the connection's
// current database (`database()`). MySQL identifiers are case-insensitive
// on the (default) case-insensitive collation most deployments use.
type mysqlIntrospector struct{}

func (mysqlIntrospector) Introspect(ctx context.Context, db *sql.DB) ([]model.TableInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, table_rows FROM information_schema.tables
		WHERE table_schema = database() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("schema.mysqlIntrospector: list tables: %w", err)
	}
	type tableRow struct {
		name string
		rows int64
	}
	var list []tableRow
	for rows.Next() {
		var tr tableRow
		var approxRows sql.NullInt64
		if err := rows.Scan(&tr.name, &approxRows); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schema.mysqlIntrospector: scan table: %w", err)
		}
		tr.rows = approxRows.Int64
		list = append(list, tr)
	}
	rows.Close()

	tables := make([]model.TableInfo, 0, len(list))
	for _, tr := range list {
		t, err := mysqlDescribeTable(ctx, db, tr.name)
		if err != nil {
			return nil, err
		}
		t.ApproxRowCount = tr.rows
		tables = append(tables, t)
	}
	return tables, nil
}

func mysqlDescribeTable(ctx context.Context, db *sql.DB, name string) (model.TableInfo, error) {
	t := model.TableInfo{Name: name}

	colRows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', character_maximum_length, column_key = 'PRI'
		FROM information_schema.columns
		WHERE table_schema = database() AND table_name = ?
		ORDER BY ordinal_position`, name)
	if err != nil {
		return t, fmt.Errorf("schema.mysqlIntrospector: columns(%s): %w", name, err)
	}
	for colRows.Next() {
		var c model.ColumnInfo
		var maxLen sql.NullInt64
		if err := colRows.Scan(&c.Name, &c.DataType, &c.Nullable, &maxLen, &c.IsPrimaryKey); err != nil {
			colRows.Close()
			return t, fmt.Errorf("schema.mysqlIntrospector: scan column(%s): %w", name, err)
		}
		if maxLen.Valid {
			v := int(maxLen.Int64)
			c.MaxLength = &v
		}
		if c.IsPrimaryKey {
			t.PrimaryKeys = append(t.PrimaryKeys, c.Name)
		}
		t.Columns = append(t.Columns, c)
	}
	colRows.Close()

	fkRows, err := db.QueryContext(ctx, `
		SELECT column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = database() AND table_name = ? AND referenced_table_name IS NOT NULL`, name)
	if err != nil {
		return t, fmt.Errorf("schema.mysqlIntrospector: fks(%s): %w", name, err)
	}
	fkSet := make(map[string]bool)
	for fkRows.Next() {
		var fk model.ForeignKeyInfo
		if err := fkRows.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			fkRows.Close()
			return t, fmt.Errorf("schema.mysqlIntrospector: scan fk(%s): %w", name, err)
		}
		t.ForeignKeys = append(t.ForeignKeys, fk)
		fkSet[fk.Column] = true
	}
	fkRows.Close()

	for i := range t.Columns {
		t.Columns[i].IsForeignKey = fkSet[t.Columns[i].Name]
	}
	return t, nil
}
