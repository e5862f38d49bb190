package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/mcpclient"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// McpResult is one tool invocation's rendered outcome, attributed back to
// the server and tool that produced it.
type McpResult struct {
	ServerID string
	ToolName string
	Rendered string
	Success  bool
}

// mcpClient is the narrow surface ToolInvoker drives; *mcpclient.Client
// satisfies it.
type mcpClient interface {
	GetConnectedServers() []string
	DiscoverTools(ctx context.Context, id string) ([]model.McpTool, error)
	CallTool(ctx context.Context, id, name string, params map[string]any) model.McpResponse
}

// ToolInvoker discovers tools on every connected MCP server and calls
// whichever look relevant to the query, additive to whatever
// documents/databases already contributed (spec: "MCP is additive when
// enabled"). A nil *ToolInvoker or nil client is a no-op, so callers that
// never configured MCP don't need to branch on it.
type ToolInvoker struct {
	client mcpClient
}

// NewToolInvoker builds a ToolInvoker around a connected mcpclient.Client.
func NewToolInvoker(client *mcpclient.Client) *ToolInvoker {
	if client == nil {
		return &ToolInvoker{}
	}
	return &ToolInvoker{client: client}
}

// Invoke discovers tools across every connected server and calls each tool
// whose name or description shares a token with the query, passing the
// query text as the tool's "query" argument. A server whose discovery call
// fails is skipped; a tool call that errors is recorded with Success=false
// rather than aborting the rest.
func (t *ToolInvoker) Invoke(ctx context.Context, query string, tokens []string) []McpResult {
	if t == nil || t.client == nil {
		return nil
	}

	var results []McpResult
	for _, serverID := range t.client.GetConnectedServers() {
		tools, err := t.client.DiscoverTools(ctx, serverID)
		if err != nil {
			continue
		}
		for _, tool := range tools {
			if !toolMatchesQuery(tool, tokens) {
				continue
			}
			resp := t.client.CallTool(ctx, serverID, tool.Name, map[string]any{"query": query})
			rendered := string(resp.Result)
			if !resp.IsSuccess() {
				rendered = fmt.Sprintf("(tool call failed: %s)", resp.Error.Message)
			}
			results = append(results, McpResult{
				ServerID: serverID,
				ToolName: tool.Name,
				Rendered: rendered,
				Success:  resp.IsSuccess(),
			})
		}
	}
	return results
}

// toolMatchesQuery reports whether any query token appears in the tool's
// name or description — a cheap relevance filter so every connected
// server's every tool isn't called on every query.
func toolMatchesQuery(tool model.McpTool, tokens []string) bool {
	haystack := strings.ToLower(tool.Name + " " + tool.Description)
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			return true
		}
	}
	return false
}
