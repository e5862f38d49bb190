// Package mcpclient maintains live JSON-RPC 2.0 connections to external
// tool servers ("Model Context Protocol" servers): connect/disconnect per
// server id, discover the tools a server advertises, and invoke one.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// rpcClient is the subset of *client.Client this package drives. Pulling
// it out as an interface keeps Connect's transport-construction step
// swappable in tests without standing up a real HTTP MCP server.
type rpcClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// connection is one live server session plus the config it was opened with.
type connection struct {
	cfg    model.McpServerConfig
	client rpcClient
}

// Client tracks per-server connections in a registry keyed by ServerID,
// the same sync.Map-based idiom the rate limiter uses for its per-user
// windows: a flat concurrent map instead of one global mutex, since
// servers connect/disconnect independently of each other.
type Client struct {
	connections sync.Map // map[string]*connection

	// dial is overridable in tests; defaults to newStreamableClient.
	dial func(cfg model.McpServerConfig) (rpcClient, error)
}

// New builds an empty Client. No servers are connected until Connect is
// called, typically once per AutoConnect=true entry at startup (C14).
func New() *Client {
	return &Client{dial: newStreamableClient}
}

func newStreamableClient(cfg model.McpServerConfig) (rpcClient, error) {
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("mcpclient: endpoint %q is not an absolute URL: %w", cfg.Endpoint, err)
	}

	var opts []transport.StreamableHTTPCOption
	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
	}
	c, err := client.NewStreamableHttpClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: new client for %s: %w", cfg.ServerID, err)
	}
	return c, nil
}

func validate(cfg model.McpServerConfig) error {
	if strings.TrimSpace(cfg.ServerID) == "" {
		return fmt.Errorf("mcpclient: ServerID is required")
	}
	u, err := url.ParseRequestURI(cfg.Endpoint)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("mcpclient: Endpoint must be an absolute URL, got %q", cfg.Endpoint)
	}
	return nil
}

// Connect validates cfg, opens a transport and runs the MCP initialize
// handshake. Reconnecting an already-connected server id replaces the
// prior connection after disconnecting it.
func (c *Client) Connect(ctx context.Context, cfg model.McpServerConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}

	if existing, ok := c.connections.Load(cfg.ServerID); ok {
		_ = existing.(*connection).client.Close()
		c.connections.Delete(cfg.ServerID)
	}

	cl, err := c.dial(cfg)
	if err != nil {
		return err
	}

	callCtx, cancel := c.withTimeout(ctx, cfg)
	defer cancel()

	if err := cl.Start(callCtx); err != nil {
		return fmt.Errorf("mcpclient.Connect(%s): start transport: %w", cfg.ServerID, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "smartrag-orchestrator", Version: "1.0.0"}
	if _, err := cl.Initialize(callCtx, initReq); err != nil {
		_ = cl.Close()
		return fmt.Errorf("mcpclient.Connect(%s): initialize: %w", cfg.ServerID, err)
	}

	c.connections.Store(cfg.ServerID, &connection{cfg: cfg, client: cl})
	return nil
}

// Disconnect closes the connection for id if one is open. Calling it
// again, or calling it for an id that was never connected, is a no-op.
func (c *Client) Disconnect(id string) error {
	v, ok := c.connections.LoadAndDelete(id)
	if !ok {
		return nil
	}
	conn := v.(*connection)
	if err := conn.client.Close(); err != nil {
		return fmt.Errorf("mcpclient.Disconnect(%s): %w", id, err)
	}
	return nil
}

// IsConnected reports whether id currently has an open connection.
func (c *Client) IsConnected(id string) bool {
	_, ok := c.connections.Load(id)
	return ok
}

// GetConnectedServers returns the ids of every currently open connection,
// in no particular order.
func (c *Client) GetConnectedServers() []string {
	var ids []string
	c.connections.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// DiscoverTools lists the tools server id currently advertises.
func (c *Client) DiscoverTools(ctx context.Context, id string) ([]model.McpTool, error) {
	conn, err := c.mustGet(id)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.withTimeout(ctx, conn.cfg)
	defer cancel()

	result, err := conn.client.ListTools(callCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpclient.DiscoverTools(%s): %w", id, err)
	}

	tools := make([]model.McpTool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, _ := json.Marshal(t.InputSchema)
		tools = append(tools, model.McpTool{
			ServerID:    id,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

// CallTool invokes name on server id with params, always returning a
// model.McpResponse rather than a bare error: IsSuccess() is true exactly
// when the JSON-RPC response carried no error object. Transport-level
// failures (server unreachable, timeout) are reported the same way, as a
// response-level error, so callers never need a second failure path.
func (c *Client) CallTool(ctx context.Context, id, name string, params map[string]any) model.McpResponse {
	resp := model.McpResponse{ServerID: id, ToolName: name}

	conn, err := c.mustGet(id)
	if err != nil {
		resp.Error = &model.McpError{Code: -32001, Message: err.Error()}
		return resp
	}

	callCtx, cancel := c.withTimeout(ctx, conn.cfg)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = params

	result, err := conn.client.CallTool(callCtx, req)
	if err != nil {
		resp.Error = &model.McpError{Code: -32000, Message: err.Error()}
		return resp
	}
	if result.IsError {
		resp.Error = &model.McpError{Code: -32002, Message: renderContent(result.Content)}
		return resp
	}

	raw, err := json.Marshal(result.Content)
	if err != nil {
		resp.Error = &model.McpError{Code: -32003, Message: err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

func renderContent(content []mcp.Content) string {
	var b strings.Builder
	for _, item := range content {
		if tc, ok := item.(mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func (c *Client) mustGet(id string) (*connection, error) {
	v, ok := c.connections.Load(id)
	if !ok {
		return nil, fmt.Errorf("mcpclient: server %q is not connected", id)
	}
	return v.(*connection), nil
}

func (c *Client) withTimeout(ctx context.Context, cfg model.McpServerConfig) (context.Context, context.CancelFunc) {
	d := time.Duration(cfg.TimeoutSeconds) * time.Second
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// CloseAll disconnects every open connection. Intended for shutdown.
func (c *Client) CloseAll() {
	for _, id := range c.GetConnectedServers() {
		_ = c.Disconnect(id)
	}
}
