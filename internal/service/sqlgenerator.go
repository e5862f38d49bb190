package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SQLGeneratorService implements dbcoordinator.SQLGenerator on top of a
// TextGenerator. The model is asked for one JSON object per targeted
// database (see promptbuilder.BuildSQLUserMessage's contract) rather than
// a single array, since some providers truncate long array responses
// before the closing bracket; a streaming decoder tolerates that shape
// either way.
type SQLGeneratorService struct {
	gateway TextGenerator
}

// NewSQLGeneratorService builds a SQLGeneratorService around an AI gateway.
func NewSQLGeneratorService(gateway TextGenerator) *SQLGeneratorService {
	return &SQLGeneratorService{gateway: gateway}
}

type sqlStatement struct {
	DatabaseID string `json:"databaseId"`
	SQL        string `json:"sql"`
}

// GenerateSQL asks the gateway for SQL and parses its response into a map
// keyed by database id. A response containing no valid statement for any
// database is not itself an error; the coordinator treats a missing key
// as "no SQL generated for this database".
func (s *SQLGeneratorService) GenerateSQL(ctx context.Context, systemPrompt, userPrompt string) (map[string]string, error) {
	raw, err := s.gateway.GenerateText(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("service.SQLGeneratorService.GenerateSQL: %w", err)
	}

	statements, err := parseSQLStatements(raw)
	if err != nil {
		return nil, fmt.Errorf("service.SQLGeneratorService.GenerateSQL: %w", err)
	}

	result := make(map[string]string, len(statements))
	for _, stmt := range statements {
		if stmt.DatabaseID == "" || strings.TrimSpace(stmt.SQL) == "" {
			continue
		}
		result[stmt.DatabaseID] = stmt.SQL
	}
	return result, nil
}

// parseSQLStatements decodes one or more concatenated JSON objects out of
// a model response, stripping a surrounding markdown fence first.
func parseSQLStatements(raw string) ([]sqlStatement, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 3 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil, fmt.Errorf("empty SQL generation response")
	}

	// A single JSON array is also accepted for providers that prefer it.
	if strings.HasPrefix(cleaned, "[") {
		var statements []sqlStatement
		if err := json.Unmarshal([]byte(cleaned), &statements); err != nil {
			return nil, fmt.Errorf("malformed SQL generation response: %w", err)
		}
		return statements, nil
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	var statements []sqlStatement
	for dec.More() {
		var stmt sqlStatement
		if err := dec.Decode(&stmt); err != nil {
			return nil, fmt.Errorf("malformed SQL generation response: %w", err)
		}
		statements = append(statements, stmt)
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("malformed SQL generation response: no JSON objects found")
	}
	return statements, nil
}
