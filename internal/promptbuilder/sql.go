// Package promptbuilder assembles the dual system/user prompts the
// multi-database coordinator and answer synthesizer send to the AI
// gateway. Splitting system instructions from the user's natural-language
// query improves model adherence to routing rules.
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// dialectReminders are emitted verbatim in the user message so the model
// doesn't have to infer per-dialect LIMIT/quoting rules on its own.
var dialectReminders = map[model.DatabaseDialect]string{
	model.DialectSQLServer:  "SQL Server: TOP immediately after SELECT — never LIMIT.",
	model.DialectMySQL:      "MySQL: quote identifiers with backticks; every derived table needs an alias.",
	model.DialectPostgreSQL: "PostgreSQL: double-quote any identifier containing uppercase letters; identifiers are otherwise case-sensitive.",
	model.DialectSQLite:     "SQLite: double-quote identifiers; LIMIT goes at the end of the statement.",
}

// BuildSQLSystemMessage enumerates every schema the query may target:
// tables, columns with types, foreign keys, and — when more than one
// database is involved — the cross-database table-to-database mapping.
func BuildSQLSystemMessage(schemas []model.DatabaseSchemaInfo) string {
	var b strings.Builder
	b.WriteString("You generate SQL for one or more databases. Use only the tables and columns listed below; never invent one.\n\n")

	for _, s := range schemas {
		fmt.Fprintf(&b, "## Database %q (%s)\n", s.Name, s.Type)
		for _, t := range s.Tables {
			fmt.Fprintf(&b, "- Table %s (", t.Name)
			cols := make([]string, len(t.Columns))
			for i, c := range t.Columns {
				marker := ""
				if c.IsPrimaryKey {
					marker = " PK"
				}
				if c.IsForeignKey {
					marker += " FK"
				}
				cols[i] = fmt.Sprintf("%s %s%s", c.Name, c.DataType, marker)
			}
			b.WriteString(strings.Join(cols, ", "))
			b.WriteString(")\n")
			for _, fk := range t.ForeignKeys {
				fmt.Fprintf(&b, "  - %s.%s -> %s.%s\n", t.Name, fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
			}
		}
		b.WriteString("\n")
	}

	if len(schemas) > 1 {
		b.WriteString("## Cross-database table ownership\n")
		for _, s := range schemas {
			var names []string
			for _, t := range s.Tables {
				names = append(names, t.Name)
			}
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, strings.Join(names, ", "))
		}
		b.WriteString("A query for one database must never reference a table owned by another.\n")
	}

	return b.String()
}

// BuildSQLUserMessage composes the routing rules, dialect reminders and the
// user's natural-language query into the user-turn message. fewShot gives
// worked examples (query -> SQL) the caller curates per deployment.
func BuildSQLUserMessage(query string, dialects []model.DatabaseDialect, fewShot []string) string {
	var b strings.Builder
	b.WriteString("Routing rules:\n")
	b.WriteString("- Respond with one JSON object per target database: {\"databaseId\":..., \"sql\":...}.\n")
	b.WriteString("- Never reference DROP, DELETE, TRUNCATE, ALTER, CREATE, GRANT, REVOKE, EXEC or EXECUTE.\n")
	b.WriteString("- Never use CROSS JOIN or nest more than two SELECTs.\n\n")

	seen := make(map[model.DatabaseDialect]bool)
	for _, d := range dialects {
		if seen[d] {
			continue
		}
		seen[d] = true
		if reminder, ok := dialectReminders[d]; ok {
			b.WriteString("- ")
			b.WriteString(reminder)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	if len(fewShot) > 0 {
		b.WriteString("Examples:\n")
		for _, ex := range fewShot {
			b.WriteString(ex)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User query: %s\n", query)
	return b.String()
}
