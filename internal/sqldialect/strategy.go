// Package sqldialect implements one Strategy per supported SQL dialect:
// identifier escaping, forbidden-keyword/structure validation, limit-clause
// placement, and dialect-specific rule-based repair.
package sqldialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// Strategy is the per-dialect contract. Every method is pure (no I/O);
// ApplyLimit/Repair/Validate operate on already-generated SQL text.
type Strategy interface {
	Dialect() model.DatabaseDialect
	QuoteIdentifier(name string) string
	ApplyLimit(sql string, n int) string
	Validate(sql string) []string
	// Repair applies rule-based rewrites that don't require re-validation
	// against an LLM. tables gives repairs that need to distinguish real
	// columns from hallucinated function calls the schema they're checked
	// against.
	Repair(sql string, tables []model.TableInfo) string
}

// ForDialect returns the Strategy implementing dialect.
func ForDialect(dialect model.DatabaseDialect) (Strategy, error) {
	switch dialect {
	case model.DialectSQLite:
		return sqliteStrategy{}, nil
	case model.DialectSQLServer:
		return sqlServerStrategy{}, nil
	case model.DialectMySQL:
		return mysqlStrategy{}, nil
	case model.DialectPostgreSQL:
		return postgresStrategy{}, nil
	default:
		return nil, fmt.Errorf("sqldialect.ForDialect: unsupported dialect %q", dialect)
	}
}

var forbiddenKeywords = regexp.MustCompile(`(?i)\b(DROP|DELETE|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|EXEC|EXECUTE)\b`)
var crossJoinRe = regexp.MustCompile(`(?i)\bCROSS\s+JOIN\b`)
var selectRe = regexp.MustCompile(`(?i)\bSELECT\b`)

// validateCommon runs the dialect-agnostic checks shared by every Strategy:
// forbidden keywords outside string literals, CROSS JOIN, and more than two
// nested SELECTs.
func validateCommon(sql string) []string {
	var errs []string
	stripped := stripStringLiterals(sql)

	if m := forbiddenKeywords.FindString(stripped); m != "" {
		errs = append(errs, fmt.Sprintf("statement contains forbidden keyword %q", strings.ToUpper(m)))
	}
	if crossJoinRe.MatchString(stripped) {
		errs = append(errs, "CROSS JOIN is not permitted")
	}
	if n := len(selectRe.FindAllStringIndex(stripped, -1)); n > 2 {
		errs = append(errs, fmt.Sprintf("statement nests %d SELECTs, at most 2 are permitted", n))
	}
	return errs
}

// stripStringLiterals blanks out the contents of single-quoted literals
// (doubled '' escapes the quote itself) so keyword/structure checks never
// trip on a keyword that only appears as data.
func stripStringLiterals(sql string) string {
	var b strings.Builder
	inLiteral := false
	runes := []rune(sql)
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
