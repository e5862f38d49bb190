package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// postgresIntrospector reads pg_catalog via information_schema views,
// exact-case (PostgreSQL identifiers are case-sensitive by convention).
type postgresIntrospector struct{}

func (postgresIntrospector) Introspect(ctx context.Context, db *sql.DB) ([]model.TableInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("schema.postgresIntrospector: list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schema.postgresIntrospector: scan table: %w", err)
		}
		names = append(names, n)
	}
	rows.Close()

	tables := make([]model.TableInfo, 0, len(names))
	for _, name := range names {
		t, err := postgresDescribeTable(ctx, db, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func postgresDescribeTable(ctx context.Context, db *sql.DB, name string) (model.TableInfo, error) {
	t := model.TableInfo{Name: name}

	colRows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, name)
	if err != nil {
		return t, fmt.Errorf("schema.postgresIntrospector: columns(%s): %w", name, err)
	}
	for colRows.Next() {
		var c model.ColumnInfo
		var maxLen sql.NullInt64
		if err := colRows.Scan(&c.Name, &c.DataType, &c.Nullable, &maxLen); err != nil {
			colRows.Close()
			return t, fmt.Errorf("schema.postgresIntrospector: scan column(%s): %w", name, err)
		}
		if maxLen.Valid {
			v := int(maxLen.Int64)
			c.MaxLength = &v
		}
		t.Columns = append(t.Columns, c)
	}
	colRows.Close()

	pkRows, err := db.QueryContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'`, name)
	if err != nil {
		return t, fmt.Errorf("schema.postgresIntrospector: pks(%s): %w", name, err)
	}
	pkSet := make(map[string]bool)
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			pkRows.Close()
			return t, fmt.Errorf("schema.postgresIntrospector: scan pk(%s): %w", name, err)
		}
		t.PrimaryKeys = append(t.PrimaryKeys, col)
		pkSet[col] = true
	}
	pkRows.Close()

	fkRows, err := db.QueryContext(ctx, `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'FOREIGN KEY'`, name)
	if err != nil {
		return t, fmt.Errorf("schema.postgresIntrospector: fks(%s): %w", name, err)
	}
	fkSet := make(map[string]bool)
	for fkRows.Next() {
		var fk model.ForeignKeyInfo
		if err := fkRows.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			fkRows.Close()
			return t, fmt.Errorf("schema.postgresIntrospector: scan fk(%s): %w", name, err)
		}
		t.ForeignKeys = append(t.ForeignKeys, fk)
		fkSet[fk.Column] = true
	}
	fkRows.Close()

	for i := range t.Columns {
		t.Columns[i].IsPrimaryKey = pkSet[t.Columns[i].Name]
		t.Columns[i].IsForeignKey = fkSet[t.Columns[i].Name]
	}

	var count int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT reltuples::bigint FROM pg_class WHERE relname = %s`, "$1"), name).Scan(&count); err == nil && count >= 0 {
		t.ApproxRowCount = count
	}
	return t, nil
}
