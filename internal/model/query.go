package model

import "time"

// DatabaseQueryIntent is one database-targeted sub-query within a QueryIntent.
type DatabaseQueryIntent struct {
	DatabaseID     string `json:"databaseId"`
	DatabaseName   string `json:"databaseName"`
	RequiredTables []string `json:"requiredTables"`
	SQL            *string  `json:"sql,omitempty"` // nil until C8 fills it in
	Purpose        string   `json:"purpose"`
	Priority       int      `json:"priority"` // higher runs/ranks first
}

// QueryIntent is the structured interpretation of a user query produced by
// the Query Intent Analyzer (C10).
type QueryIntent struct {
	OriginalQuery             string                `json:"originalQuery"`
	Understanding             string                `json:"understanding"`
	Confidence                float64               `json:"confidence"`
	Reasoning                 string                `json:"reasoning"`
	RequiresCrossDatabaseJoin bool                  `json:"requiresCrossDatabaseJoin"`
	DatabaseIntents           []DatabaseQueryIntent `json:"databaseIntents"`
}

// HasDatabaseTargets reports whether any database rows were produced.
func (q *QueryIntent) HasDatabaseTargets() bool {
	return len(q.DatabaseIntents) > 0
}

// QueryIntentAnalysisResult is the full output of the Query Intent Analyzer,
// including the conversational branch that short-circuits retrieval.
type QueryIntentAnalysisResult struct {
	IsConversation       bool         `json:"isConversation"`
	Tokens               []string     `json:"tokens"`
	ConversationalAnswer string       `json:"conversationalAnswer,omitempty"`
	Intent               *QueryIntent `json:"intent,omitempty"`
}

// SourceType discriminates the kind of provenance record attached to an answer.
type SourceType string

const (
	SourceDocument SourceType = "Document"
	SourceImage    SourceType = "Image"
	SourceAudio    SourceType = "Audio"
	SourceDatabase SourceType = "Database"
	SourceSystem   SourceType = "System"
)

// Source is a provenance record attached to an answer, enabling citation.
type Source struct {
	Type           SourceType `json:"type"`
	RelevanceScore float64    `json:"relevanceScore"`
	Excerpt        string     `json:"excerpt"`
	Location       string     `json:"location,omitempty"`

	// Document / Image / Audio variants.
	DocumentID string  `json:"documentId,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	ChunkIndex int     `json:"chunkIndex,omitempty"`
	StartChar  int     `json:"startChar,omitempty"`
	EndChar    int     `json:"endChar,omitempty"`
	AudioStart float64 `json:"audioStart,omitempty"`
	AudioEnd   float64 `json:"audioEnd,omitempty"`

	// Database variant.
	DatabaseID   string   `json:"databaseId,omitempty"`
	DatabaseName string   `json:"databaseName,omitempty"`
	Tables       []string `json:"tables,omitempty"`
	SQL          string   `json:"sql,omitempty"`
	RowNumber    *int     `json:"rowNumber,omitempty"`
}

// EffectiveConfig is the configuration snapshot embedded in a RagResponse.
type EffectiveConfig struct {
	AIProvider      string `json:"aiProvider"`
	StorageProvider string `json:"storageProvider"`
	ModelName       string `json:"modelName"`
}

// SearchMetadata flags which subsystems were consulted for a query and how
// many results each returned.
type SearchMetadata struct {
	DocumentSearchPerformed bool `json:"documentSearchPerformed"`
	DocumentResultsFound    int  `json:"documentResultsFound"`
	DatabaseSearchPerformed bool `json:"databaseSearchPerformed"`
	DatabaseResultsFound    int  `json:"databaseResultsFound"`
	McpSearchPerformed      bool `json:"mcpSearchPerformed"`
	McpResultsFound         int  `json:"mcpResultsFound"`
}

// RagResponse is returned to the caller after a query has been answered.
type RagResponse struct {
	OriginalQuery   string          `json:"originalQuery"`
	Answer          string          `json:"answer"`
	Sources         []Source        `json:"sources"`
	SearchTimestamp time.Time       `json:"searchTimestamp"`
	Config          EffectiveConfig `json:"config"`
	SearchMetadata  SearchMetadata  `json:"searchMetadata"`
}
