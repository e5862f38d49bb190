// Package sqlvalidate checks generated SQL against a target database's
// schema: every referenced table must resolve, as must every alias.column
// on a table the intent requires, with dialect-sensitive case rules, and
// cross-database table leakage is rejected outright.
package sqlvalidate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// Severity discriminates a hard failure from an informational warning.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validation result.
type Finding struct {
	Severity Severity
	Message  string
}

var fromJoinTableRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_"` + "`" + `\[\]]*)(?:\s+(?:AS\s+)?([a-zA-Z_][a-zA-Z0-9_]*))?`)
var aliasColumnRe = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
var crossJoinRe = regexp.MustCompile(`(?i)\bCROSS\s+JOIN\b`)
var nestedSelectRe = regexp.MustCompile(`(?i)\bSELECT\b`)

// Validate checks sql against schema. requiredTables is the set of table
// names the intent said this query must target (referencing an
// existing-but-not-required table is a warning, not an error).
// allDatabaseNames lists every configured database name, for cross-database
// leakage detection: a table name that belongs to a different configured
// database than schema's is always an error.
func Validate(sqlText string, schema *model.DatabaseSchemaInfo, requiredTables []string, allDatabaseNames map[string][]string) []Finding {
	var findings []Finding
	caseSensitive := schema.Type == model.DialectPostgreSQL

	required := make(map[string]bool, len(requiredTables))
	for _, t := range requiredTables {
		required[normalizeForSet(t, caseSensitive)] = true
	}

	aliases := make(map[string]string) // alias -> table name

	for _, m := range fromJoinTableRe.FindAllStringSubmatch(sqlText, -1) {
		tableRef := unquote(m[1])
		alias := m[2]

		if owner, ok := tableOwnedByOtherDatabase(tableRef, schema.Name, allDatabaseNames); ok {
			findings = append(findings, Finding{SeverityError, fmt.Sprintf("table %q belongs to database %q, not %q: cross-database references are not permitted", tableRef, owner, schema.Name)})
			continue
		}

		table := schema.TableByName(tableRef)
		if table == nil {
			if caseSensitive {
				if match := caseInsensitiveTableByName(schema, tableRef); match != nil {
					findings = append(findings, Finding{SeverityError, fmt.Sprintf("table %q does not exist in database %q (case mismatch, use %q)", tableRef, schema.Name, match.Name)})
					continue
				}
			}
			findings = append(findings, Finding{SeverityError, fmt.Sprintf("table %q does not exist in database %q", tableRef, schema.Name)})
			continue
		}
		if !required[normalizeForSet(tableRef, caseSensitive)] && len(required) > 0 {
			findings = append(findings, Finding{SeverityWarning, fmt.Sprintf("table %q exists but was not in the set of tables this query was expected to use", tableRef)})
		}
		if alias != "" {
			aliases[alias] = table.Name
		} else {
			aliases[table.Name] = table.Name
		}
	}

	for _, m := range aliasColumnRe.FindAllStringSubmatch(sqlText, -1) {
		alias, col := m[1], m[2]
		tableName, ok := aliases[alias]
		if !ok {
			continue // not a known alias; likely a schema-qualifier or function namespace, not our concern here
		}
		table := schema.TableByName(tableName)
		if table == nil {
			continue
		}
		if !required[normalizeForSet(tableName, caseSensitive)] {
			continue // column existence only enforced for required tables
		}
		if table.ColumnByName(col, caseSensitive) == nil {
			if !caseSensitive {
				findings = append(findings, Finding{SeverityError, fmt.Sprintf("column %q does not exist on table %q", col, tableName)})
				continue
			}
			if match := table.ColumnByName(col, false); match != nil {
				findings = append(findings, Finding{SeverityError, fmt.Sprintf("column %q does not exist on table %q (did you mean %q? PostgreSQL is case-sensitive)", col, tableName, match.Name)})
				continue
			}
			findings = append(findings, Finding{SeverityError, fmt.Sprintf("column %q does not exist on table %q", col, tableName)})
		}
	}

	stripped := stripStringLiterals(sqlText)
	if crossJoinRe.MatchString(stripped) {
		findings = append(findings, Finding{SeverityError, "CROSS JOIN is not permitted"})
	}
	if n := len(nestedSelectRe.FindAllStringIndex(stripped, -1)); n > 2 {
		findings = append(findings, Finding{SeverityError, fmt.Sprintf("statement nests %d SELECTs, at most 2 are permitted", n)})
	}

	return findings
}

// HasErrors reports whether any finding is an error (as opposed to a
// warning).
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func normalizeForSet(name string, caseSensitive bool) string {
	if caseSensitive {
		return name
	}
	return strings.ToLower(name)
}

func unquote(s string) string {
	s = strings.Trim(s, `"`+"`"+`[]`)
	return s
}

func caseInsensitiveTableByName(schema *model.DatabaseSchemaInfo, name string) *model.TableInfo {
	for i := range schema.Tables {
		if strings.EqualFold(schema.Tables[i].Name, name) {
			return &schema.Tables[i]
		}
	}
	return nil
}

func tableOwnedByOtherDatabase(table, currentDB string, allDatabaseNames map[string][]string) (string, bool) {
	for db, tables := range allDatabaseNames {
		if db == currentDB {
			continue
		}
		for _, t := range tables {
			if strings.EqualFold(t, table) {
				return db, true
			}
		}
	}
	return "", false
}

func stripStringLiterals(sqlText string) string {
	var b strings.Builder
	inLiteral := false
	runes := []rune(sqlText)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\'' {
			if inLiteral && i+1 < len(runes) && runes[i+1] == '\'' {
				b.WriteRune(' ')
				b.WriteRune(' ')
				i++
				continue
			}
			inLiteral = !inLiteral
			b.WriteRune(' ')
			continue
		}
		if inLiteral {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
