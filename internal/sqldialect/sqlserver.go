package sqldialect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

type sqlServerStrategy struct{}

func (sqlServerStrategy) Dialect() model.DatabaseDialect { return model.DialectSQLServer }

func (sqlServerStrategy) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// ApplyLimit emits TOP n immediately after SELECT (and after a leading
// DISTINCT, if present) rather than a trailing clause.
func (sqlServerStrategy) ApplyLimit(sql string, n int) string {
	re := regexp.MustCompile(`(?i)^(\s*SELECT\s+)(DISTINCT\s+)?`)
	if loc := re.FindStringSubmatchIndex(sql); loc != nil {
		prefix := sql[:loc[1]]
		rest := sql[loc[1]:]
		return fmt.Sprintf("%sTOP %d %s", prefix, n, rest)
	}
	return sql
}

func (sqlServerStrategy) Validate(sql string) []string {
	return validateCommon(sql)
}

var trailingLimitRe = regexp.MustCompile(`(?is)\s+LIMIT\s+(\d+)\s*;?\s*$`)
var fetchFirstRe = regexp.MustCompile(`(?is)\s+FETCH\s+FIRST\s+(\d+)\s+ROWS\s+ONLY\s*;?\s*$`)
var dottedAliasRe = regexp.MustCompile(`(?i)\bAS\s+([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
var groupByOrdinalRe = regexp.MustCompile(`(?is)\bGROUP\s+BY\s+(\d+(?:\s*,\s*\d+)*)\b`)

// Repair applies the SQL Server rewrites a generated query most commonly
// needs: trailing LIMIT/FETCH FIRST rewritten to a leading TOP, a TOP token
// that landed after the select list moved before it, backticks rewritten to
// brackets, GROUP BY ordinal positions expanded to their select-list
// expressions, dotted aliases un-dotted, and function calls hallucinated on
// top of a real column name dropped in favor of the bare column.
func (s sqlServerStrategy) Repair(sql string, tables []model.TableInfo) string {
	out := sql

	if m := trailingLimitRe.FindStringSubmatch(out); m != nil {
		n, _ := strconv.Atoi(m[1])
		out = trailingLimitRe.ReplaceAllString(out, "")
		out = s.ApplyLimit(out, n)
	} else if m := fetchFirstRe.FindStringSubmatch(out); m != nil {
		n, _ := strconv.Atoi(m[1])
		out = fetchFirstRe.ReplaceAllString(out, "")
		out = s.ApplyLimit(out, n)
	}

	out = moveMisplacedTop(out)

	out = backtickRe.ReplaceAllStringFunc(out, func(m string) string {
		return s.QuoteIdentifier(backtickRe.FindStringSubmatch(m)[1])
	})
	out = rewriteGroupByOrdinals(out)
	out = dottedAliasRe.ReplaceAllString(out, "AS $2")
	out = dropHallucinatedFunctionCalls(out, tables)

	return out
}

// moveMisplacedTop handles "SELECT col1, col2 TOP 10 FROM ..." by moving
// TOP n directly after SELECT.
func moveMisplacedTop(sql string) string {
	re := regexp.MustCompile(`(?i)^(\s*SELECT\s+)(DISTINCT\s+)?(.*?)\s*TOP\s+(\d+)(?:\s+|$)`)
	m := re.FindStringSubmatch(sql)
	if m == nil {
		return sql
	}
	prefix, distinct, cols, n := m[1], m[2], strings.TrimSuffix(strings.TrimSpace(m[3]), ","), m[4]
	if cols == "" {
		return sql // TOP already sits directly after SELECT (or DISTINCT)
	}
	remainder := strings.TrimPrefix(sql[len(m[0]):], " ")
	out := fmt.Sprintf("%sTOP %s %s%s", prefix, n, distinct, cols)
	if remainder != "" {
		out += " " + remainder
	}
	return out
}

// rewriteGroupByOrdinals turns "GROUP BY 1, 2" into the select-list
// expressions at those positions. SQL Server does not accept ordinal
// positions in GROUP BY, but many generated queries use them assuming
// PostgreSQL/MySQL ordinal support.
func rewriteGroupByOrdinals(sql string) string {
	selectList := extractSelectList(sql)
	if selectList == nil {
		return sql
	}
	return groupByOrdinalRe.ReplaceAllStringFunc(sql, func(m string) string {
		parts := groupByOrdinalRe.FindStringSubmatch(m)
		ordinals := strings.Split(parts[1], ",")
		var exprs []string
		for _, o := range ordinals {
			idx, err := strconv.Atoi(strings.TrimSpace(o))
			if err != nil || idx < 1 || idx > len(selectList) {
				return m // leave unrecognized forms untouched
			}
			exprs = append(exprs, selectList[idx-1])
		}
		return "GROUP BY " + strings.Join(exprs, ", ")
	})
}

var selectListRe = regexp.MustCompile(`(?is)^\s*SELECT\s+(?:TOP\s+\d+\s+)?(?:DISTINCT\s+)?(.*?)\s+FROM\s`)

func extractSelectList(sql string) []string {
	m := selectListRe.FindStringSubmatch(sql)
	if m == nil {
		return nil
	}
	var cols []string
	depth := 0
	last := 0
	body := m[1]
	for i, r := range body {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				cols = append(cols, strings.TrimSpace(body[last:i]))
				last = i + 1
			}
		}
	}
	cols = append(cols, strings.TrimSpace(body[last:]))
	return cols
}

// dropHallucinatedFunctionCalls strips a wrapping function call from a
// reference that is actually a real column name on one of the tables the
// query targets — e.g. YEAR(order_date) where order_date is itself a DATE
// column the model incorrectly wrapped.
func dropHallucinatedFunctionCalls(sql string, tables []model.TableInfo) string {
	if len(tables) == 0 {
		return sql
	}
	known := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.Columns {
			known[strings.ToLower(c.Name)] = true
		}
	}
	re := regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\s*\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)`)
	return re.ReplaceAllStringFunc(sql, func(m string) string {
		parts := re.FindStringSubmatch(m)
		col := parts[1]
		if known[strings.ToLower(col)] {
			return col
		}
		return m
	})
}
