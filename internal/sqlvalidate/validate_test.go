package sqlvalidate

import (
	"strings"
	"testing"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

func ordersSchema() *model.DatabaseSchemaInfo {
	return &model.DatabaseSchemaInfo{
		Name: "Sales",
		Type: model.DialectPostgreSQL,
		Tables: []model.TableInfo{
			{
				Name: "orders",
				Columns: []model.ColumnInfo{
					{Name: "id", IsPrimaryKey: true},
					{Name: "customer_id"},
					{Name: "total"},
				},
			},
			{
				Name: "customers",
				Columns: []model.ColumnInfo{
					{Name: "id", IsPrimaryKey: true},
					{Name: "name"},
				},
			},
		},
	}
}

func TestValidate_UnknownTable(t *testing.T) {
	findings := Validate("SELECT * FROM invoices", ordersSchema(), []string{"orders"}, nil)
	if !HasErrors(findings) {
		t.Error("expected error for unknown table")
	}
}

func TestValidate_KnownButNotRequiredIsWarningOnly(t *testing.T) {
	findings := Validate("SELECT * FROM customers", ordersSchema(), []string{"orders"}, nil)
	if HasErrors(findings) {
		t.Errorf("expected only a warning, got %v", findings)
	}
	if len(findings) == 0 {
		t.Error("expected a warning for the unexpected-but-valid table")
	}
}

func TestValidate_ColumnDoesNotExist(t *testing.T) {
	sql := "SELECT o.missing_col FROM orders o"
	findings := Validate(sql, ordersSchema(), []string{"orders"}, nil)
	if !HasErrors(findings) {
		t.Error("expected error for nonexistent column")
	}
}

func TestValidate_ValidQueryHasNoErrors(t *testing.T) {
	sql := "SELECT o.id, o.total FROM orders o"
	findings := Validate(sql, ordersSchema(), []string{"orders"}, nil)
	if HasErrors(findings) {
		t.Errorf("expected no errors, got %v", findings)
	}
}

func TestValidate_CrossDatabaseLeakage(t *testing.T) {
	sql := "SELECT * FROM employees"
	allDBs := map[string][]string{
		"Sales": {"orders", "customers"},
		"HR":    {"employees"},
	}
	findings := Validate(sql, ordersSchema(), []string{"orders"}, allDBs)
	if !HasErrors(findings) {
		t.Error("expected cross-database leakage error")
	}
}

func TestValidate_CrossJoinRejected(t *testing.T) {
	sql := "SELECT * FROM orders CROSS JOIN customers"
	findings := Validate(sql, ordersSchema(), []string{"orders", "customers"}, nil)
	if !HasErrors(findings) {
		t.Error("expected CROSS JOIN error")
	}
}

func TestValidate_CaseMismatchSuggestsCorrectCase(t *testing.T) {
	schema := ordersSchema() // PostgreSQL, case-sensitive
	sql := "SELECT o.Total FROM orders o"
	findings := Validate(sql, schema, []string{"orders"}, nil)
	found := false
	for _, f := range findings {
		if f.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Error("expected a case-mismatch error for PostgreSQL")
	}
}

func TestValidate_TableCaseMismatchSuggestsCorrectCase(t *testing.T) {
	schema := ordersSchema() // PostgreSQL, case-sensitive
	schema.Tables[0].Name = "Orders"
	findings := Validate("SELECT * FROM orders", schema, []string{"Orders"}, nil)
	if !HasErrors(findings) {
		t.Fatal("expected a table case-mismatch error for PostgreSQL")
	}
	found := false
	for _, f := range findings {
		if f.Severity == SeverityError && strings.Contains(f.Message, `use "Orders"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected message suggesting correct case, got %v", findings)
	}
}
