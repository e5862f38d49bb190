package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
)

// TextGenerator is the minimal AI-gateway surface the intent analyzer
// needs: one system/user prompt pair in, one completion out.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// IntentAnalyzer classifies a query as conversational or retrieval-seeking
// and, for the latter, builds the structured QueryIntent the downstream
// document/database/MCP stages route on.
type IntentAnalyzer struct {
	gateway TextGenerator
}

// NewIntentAnalyzer builds an IntentAnalyzer around an AI gateway.
func NewIntentAnalyzer(gateway TextGenerator) *IntentAnalyzer {
	return &IntentAnalyzer{gateway: gateway}
}

// intentVerdict is the JSON contract the classification prompt asks for.
type intentVerdict struct {
	IsConversation       bool    `json:"isConversation"`
	ConversationalAnswer string  `json:"conversationalAnswer"`
	Understanding        string  `json:"understanding"`
	Confidence           float64 `json:"confidence"`
	Reasoning            string  `json:"reasoning"`
	RequiresJoin         bool    `json:"requiresCrossDatabaseJoin"`
	DatabaseIntents      []struct {
		DatabaseName   string   `json:"databaseName"`
		RequiredTables []string `json:"requiredTables"`
		Purpose        string   `json:"purpose"`
		Priority       int      `json:"priority"`
	} `json:"databaseIntents"`
}

// Analyze classifies query against the known database names and an
// optional conversation history, returning tokens for every query
// (conversational or not) and a populated QueryIntent when retrieval is
// needed. databaseNameToID maps each known database's display name to its
// configured id, since the classification prompt only ever sees names.
func (a *IntentAnalyzer) Analyze(ctx context.Context, query, history string, databaseNameToID map[string]string) (*model.QueryIntentAnalysisResult, error) {
	tokens := repository.TokenizeOCRTolerant(query)

	system := buildIntentSystemMessage(databaseNameToID)
	user := buildIntentUserMessage(query, history)

	raw, err := a.gateway.GenerateText(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("service.Analyze: %w", err)
	}

	verdict, err := parseIntentVerdict(raw)
	if err != nil {
		return nil, fmt.Errorf("service.Analyze: %w", err)
	}

	result := &model.QueryIntentAnalysisResult{
		IsConversation: verdict.IsConversation,
		Tokens:         tokens,
	}
	if verdict.IsConversation {
		result.ConversationalAnswer = verdict.ConversationalAnswer
		return result, nil
	}

	intent := &model.QueryIntent{
		OriginalQuery:             query,
		Understanding:             verdict.Understanding,
		Confidence:                verdict.Confidence,
		Reasoning:                 verdict.Reasoning,
		RequiresCrossDatabaseJoin: verdict.RequiresJoin,
	}
	for i, di := range verdict.DatabaseIntents {
		id, known := databaseNameToID[di.DatabaseName]
		if !known {
			continue
		}
		intent.DatabaseIntents = append(intent.DatabaseIntents, model.DatabaseQueryIntent{
			DatabaseID:     id,
			DatabaseName:   di.DatabaseName,
			RequiredTables: di.RequiredTables,
			Purpose:        di.Purpose,
			Priority:       priorityOrDefault(di.Priority, len(verdict.DatabaseIntents)-i),
		})
	}
	result.Intent = intent
	return result, nil
}

func priorityOrDefault(declared, fallback int) int {
	if declared != 0 {
		return declared
	}
	return fallback
}

func buildIntentSystemMessage(databaseNameToID map[string]string) string {
	var b strings.Builder
	b.WriteString("You classify a user query for a retrieval orchestrator. Decide whether it is purely conversational ")
	b.WriteString("(greetings, thanks, clarification about the assistant itself) or requires looking something up.\n\n")
	if len(databaseNameToID) > 0 {
		b.WriteString("Known databases:\n")
		for name := range databaseNameToID {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		b.WriteString("\n")
	}
	b.WriteString("Respond with JSON only, no markdown fences:\n")
	b.WriteString(`{"isConversation": bool, "conversationalAnswer": "string, only if isConversation", ` +
		`"understanding": "one sentence restating the query's intent", "confidence": 0.0-1.0, ` +
		`"reasoning": "short justification", "requiresCrossDatabaseJoin": bool, ` +
		`"databaseIntents": [{"databaseName": "must match a known database", "requiredTables": ["..."], "purpose": "...", "priority": int}]}`)
	return b.String()
}

func buildIntentUserMessage(query, history string) string {
	var b strings.Builder
	if strings.TrimSpace(history) != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	b.WriteString("Query: ")
	b.WriteString(query)
	return b.String()
}

func parseIntentVerdict(raw string) (*intentVerdict, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 3 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	var v intentVerdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("malformed classification response: %w", err)
	}
	return &v, nil
}
