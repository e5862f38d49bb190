package sqldialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

type mysqlStrategy struct{}

func (mysqlStrategy) Dialect() model.DatabaseDialect { return model.DialectMySQL }

func (mysqlStrategy) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlStrategy) ApplyLimit(sql string, n int) string {
	return strings.TrimRight(sql, "; \n\t") + fmt.Sprintf(" LIMIT %d", n)
}

func (mysqlStrategy) Validate(sql string) []string {
	return validateCommon(sql)
}

// derivedTableRe matches a parenthesized subquery used as a FROM/JOIN
// source that is not immediately followed by an alias.
var derivedTableRe = regexp.MustCompile(`(?is)(\bFROM\s*\([^()]*(?:\([^()]*\)[^()]*)*\)|\bJOIN\s*\([^()]*(?:\([^()]*\)[^()]*)*\))(\s*)(\)|,|\bWHERE\b|\bGROUP\b|\bORDER\b|\bLIMIT\b|\bON\b|\bJOIN\b|$)`)

// Repair ensures every derived table has an alias, appending "AS dt1",
// "AS dt2", ... when one is missing — MySQL rejects an unaliased derived
// table outright.
func (mysqlStrategy) Repair(sql string, tables []model.TableInfo) string {
	n := 0
	return derivedTableRe.ReplaceAllStringFunc(sql, func(m string) string {
		groups := derivedTableRe.FindStringSubmatch(m)
		if groups == nil {
			return m
		}
		n++
		return fmt.Sprintf("%s AS dt%d%s%s", groups[1], n, groups[2], groups[3])
	})
}
