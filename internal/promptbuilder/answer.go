package promptbuilder

import (
	"fmt"
	"strings"
)

// DocumentContext is one retrieved chunk, ready to be quoted into a prompt.
type DocumentContext struct {
	Filename string
	Excerpt  string
}

// DatabaseContext is one database's rendered result block.
type DatabaseContext struct {
	DatabaseName string
	Rendered     string // formatted text table or error annotation
}

// McpContext is one tool invocation's rendered result block.
type McpContext struct {
	ServerID string
	ToolName string
	Rendered string
}

// languageInstruction renders the system-message line controlling the
// answer's language: explicit when preferredLanguage is an ISO 639-1 code,
// otherwise delegated to the model's own detection from the query.
func languageInstruction(preferredLanguage string) string {
	if preferredLanguage == "" {
		return "Detect the language of the user's query and respond in that same language."
	}
	return fmt.Sprintf("Respond in the language with ISO 639-1 code %q.", preferredLanguage)
}

// BuildDocumentRagPrompt grounds the model in retrieved chunks. In
// extraction-retry mode (the prior answer claimed the information was
// missing even though matching chunks existed) the instruction becomes
// stricter: extract only from the sources, never state information is
// absent without quoting the chunk that contradicts it.
func BuildDocumentRagPrompt(query string, chunks []DocumentContext, preferredLanguage string, extractionRetry bool) (system, user string) {
	var sb strings.Builder
	sb.WriteString("You answer questions using only the excerpts provided below. Cite the filename you drew each fact from.\n")
	if extractionRetry {
		sb.WriteString("Your previous answer claimed this information was missing even though matching excerpts exist. Re-read every excerpt below and extract the answer directly; do not claim the information is absent unless none of the excerpts contain it.\n")
	}
	sb.WriteString(languageInstruction(preferredLanguage))
	system = sb.String()

	var ub strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&ub, "[%d] %s:\n%s\n\n", i+1, c.Filename, c.Excerpt)
	}
	fmt.Fprintf(&ub, "Question: %s\n", query)
	user = ub.String()
	return system, user
}

// BuildHybridMergePrompt presents database rows, document excerpts, and
// (when any were invoked) external tool results as clearly labeled
// sections and instructs the model to merge them into one coherent
// answer. mcpResults is additive: callers with nothing to report pass nil
// and no tool section is emitted.
func BuildHybridMergePrompt(query string, chunks []DocumentContext, dbResults []DatabaseContext, mcpResults []McpContext, preferredLanguage string) (system, user string) {
	var sb strings.Builder
	sb.WriteString("You answer questions using the document excerpts, database results, and tool results provided below. Merge every source into one coherent answer; note when they agree or conflict.\n")
	sb.WriteString(languageInstruction(preferredLanguage))
	system = sb.String()

	var ub strings.Builder
	ub.WriteString("## Document excerpts\n")
	for i, c := range chunks {
		fmt.Fprintf(&ub, "[%d] %s:\n%s\n\n", i+1, c.Filename, c.Excerpt)
	}
	ub.WriteString("## Database results\n")
	for _, d := range dbResults {
		fmt.Fprintf(&ub, "### %s\n%s\n\n", d.DatabaseName, d.Rendered)
	}
	if len(mcpResults) > 0 {
		ub.WriteString("## Tool results\n")
		for _, m := range mcpResults {
			fmt.Fprintf(&ub, "### %s (%s)\n%s\n\n", m.ToolName, m.ServerID, m.Rendered)
		}
	}
	fmt.Fprintf(&ub, "Question: %s\n", query)
	user = ub.String()
	return system, user
}

// BuildConversationPrompt is small and history-aware, with no retrieval
// grounding: a plain chat continuation.
func BuildConversationPrompt(query, history, preferredLanguage string) (system, user string) {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant continuing an ongoing conversation. Answer conversationally; no document or database grounding is available for this turn.\n")
	sb.WriteString(languageInstruction(preferredLanguage))
	system = sb.String()

	var ub strings.Builder
	if history != "" {
		ub.WriteString(history)
		ub.WriteString("\n\n")
	}
	fmt.Fprintf(&ub, "User: %s\n", query)
	user = ub.String()
	return system, user
}

// RenderDatabaseTable formats rows as plain text: a header line of column
// names and one line per row, cells joined by " | " without padding or
// alignment, then a row-count footer. It is the rendered result text that
// database answer sections and database Source excerpts are built from.
func RenderDatabaseTable(columns []string, rows [][]string) string {
	if len(columns) == 0 {
		return "(no columns returned)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(columns, " | "))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "(%d rows)\n", len(rows))
	return b.String()
}
