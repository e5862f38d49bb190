package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// sqlServerIntrospector lists tables from sys.tables with row counts summed
// from sys.partitions (heap or clustered index only), an approximate count
// that avoids a full table scan, then describes each table.
type sqlServerIntrospector struct{}

func (sqlServerIntrospector) Introspect(ctx context.Context, db *sql.DB) ([]model.TableInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.name, SUM(p.rows)
		FROM sys.tables t
		JOIN sys.partitions p ON t.object_id = p.object_id AND p.index_id IN (0, 1)
		GROUP BY t.name
		ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("schema.sqlServerIntrospector: list tables: %w", err)
	}
	type tableRow struct {
		name string
		rows int64
	}
	var list []tableRow
	for rows.Next() {
		var tr tableRow
		if err := rows.Scan(&tr.name, &tr.rows); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schema.sqlServerIntrospector: scan table: %w", err)
		}
		list = append(list, tr)
	}
	rows.Close()

	tables := make([]model.TableInfo, 0, len(list))
	for _, tr := range list {
		t, err := sqlServerDescribeTable(ctx, db, tr.name)
		if err != nil {
			return nil, err
		}
		t.ApproxRowCount = tr.rows
		tables = append(tables, t)
	}
	return tables, nil
}

func sqlServerDescribeTable(ctx context.Context, db *sql.DB, name string) (model.TableInfo, error) {
	t := model.TableInfo{Name: name}

	colRows, err := db.QueryContext(ctx, `
		SELECT c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE = 'YES', c.CHARACTER_MAXIMUM_LENGTH
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_NAME = @p1
		ORDER BY c.ORDINAL_POSITION`, name)
	if err != nil {
		return t, fmt.Errorf("schema.sqlServerIntrospector: columns(%s): %w", name, err)
	}
	for colRows.Next() {
		var c model.ColumnInfo
		var maxLen sql.NullInt64
		if err := colRows.Scan(&c.Name, &c.DataType, &c.Nullable, &maxLen); err != nil {
			colRows.Close()
			return t, fmt.Errorf("schema.sqlServerIntrospector: scan column(%s): %w", name, err)
		}
		if maxLen.Valid {
			v := int(maxLen.Int64)
			c.MaxLength = &v
		}
		t.Columns = append(t.Columns, c)
	}
	colRows.Close()

	pkRows, err := db.QueryContext(ctx, `
		SELECT kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
		WHERE tc.TABLE_NAME = @p1 AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'`, name)
	if err != nil {
		return t, fmt.Errorf("schema.sqlServerIntrospector: pks(%s): %w", name, err)
	}
	pkSet := make(map[string]bool)
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			pkRows.Close()
			return t, fmt.Errorf("schema.sqlServerIntrospector: scan pk(%s): %w", name, err)
		}
		t.PrimaryKeys = append(t.PrimaryKeys, col)
		pkSet[col] = true
	}
	pkRows.Close()

	fkRows, err := db.QueryContext(ctx, `
		SELECT fk_cols.COLUMN_NAME, pk_tab.TABLE_NAME, pk_cols.COLUMN_NAME
		FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		JOIN INFORMATION_SCHEMA.TABLE_CONSTRAINTS fk_tab ON rc.CONSTRAINT_NAME = fk_tab.CONSTRAINT_NAME
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE fk_cols ON fk_tab.CONSTRAINT_NAME = fk_cols.CONSTRAINT_NAME
		JOIN INFORMATION_SCHEMA.TABLE_CONSTRAINTS pk_tab ON rc.UNIQUE_CONSTRAINT_NAME = pk_tab.CONSTRAINT_NAME
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE pk_cols ON pk_tab.CONSTRAINT_NAME = pk_cols.CONSTRAINT_NAME
		WHERE fk_tab.TABLE_NAME = @p1`, name)
	if err != nil {
		return t, fmt.Errorf("schema.sqlServerIntrospector: fks(%s): %w", name, err)
	}
	fkSet := make(map[string]bool)
	for fkRows.Next() {
		var fk model.ForeignKeyInfo
		if err := fkRows.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			fkRows.Close()
			return t, fmt.Errorf("schema.sqlServerIntrospector: scan fk(%s): %w", name, err)
		}
		t.ForeignKeys = append(t.ForeignKeys, fk)
		fkSet[fk.Column] = true
	}
	fkRows.Close()

	for i := range t.Columns {
		t.Columns[i].IsPrimaryKey = pkSet[t.Columns[i].Name]
		t.Columns[i].IsForeignKey = fkSet[t.Columns[i].Name]
	}
	return t, nil
}
