package sqldialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

type sqliteStrategy struct{}

func (sqliteStrategy) Dialect() model.DatabaseDialect { return model.DialectSQLite }

func (sqliteStrategy) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteStrategy) ApplyLimit(sql string, n int) string {
	return strings.TrimRight(sql, "; \n\t") + fmt.Sprintf(" LIMIT %d", n)
}

func (sqliteStrategy) Validate(sql string) []string {
	return validateCommon(sql)
}

var backtickRe = regexp.MustCompile("`([^`]*)`")

// Repair is minimal: SQLite tolerates both bracket and backtick quoting, so
// the only normalization applied is converting backtick-quoted identifiers
// to SQLite's native double-quote form.
func (s sqliteStrategy) Repair(sql string, tables []model.TableInfo) string {
	return backtickRe.ReplaceAllStringFunc(sql, func(m string) string {
		return s.QuoteIdentifier(backtickRe.FindStringSubmatch(m)[1])
	})
}
