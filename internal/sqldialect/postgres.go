package sqldialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

type postgresStrategy struct{}

func (postgresStrategy) Dialect() model.DatabaseDialect { return model.DialectPostgreSQL }

var hasUpper = regexp.MustCompile(`[A-Z]`)

// QuoteIdentifier quotes only when the identifier contains an uppercase
// letter — PostgreSQL folds unquoted identifiers to lowercase, so a quoted
// all-lowercase identifier is needless noise.
func (postgresStrategy) QuoteIdentifier(name string) string {
	if !hasUpper.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresStrategy) ApplyLimit(sql string, n int) string {
	return strings.TrimRight(sql, "; \n\t") + fmt.Sprintf(" LIMIT %d", n)
}

func (postgresStrategy) Validate(sql string) []string {
	return validateCommon(sql)
}

var schemaQualifiedRe = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
var doubleDoubleQuoteRe = regexp.MustCompile(`""+`)
var unquotedAliasRe = regexp.MustCompile(`\b(?i:AS)\s+"([a-z_][a-z0-9_]*)"`)

// Repair quotes dotted references in which either part contains uppercase
// ("Sales.Orders" -> "Sales"."Orders"; only the uppercase-containing parts
// are quoted), unquotes all-lowercase aliases that don't need quoting, and
// collapses doubled double-quotes left behind by naive string-building.
// Bare, undotted identifiers are left as they are.
func (s postgresStrategy) Repair(sql string, tables []model.TableInfo) string {
	out := schemaQualifiedRe.ReplaceAllStringFunc(sql, func(m string) string {
		parts := schemaQualifiedRe.FindStringSubmatch(m)
		schemaPart, tablePart := parts[1], parts[2]
		if !hasUpper.MatchString(schemaPart) && !hasUpper.MatchString(tablePart) {
			return m
		}
		return s.QuoteIdentifier(schemaPart) + "." + s.QuoteIdentifier(tablePart)
	})
	out = unquotedAliasRe.ReplaceAllString(out, "AS $1")
	out = doubleDoubleQuoteRe.ReplaceAllString(out, `"`)
	return out
}
