// Package startup wires the one-time lifecycle hook that runs after
// dependency injection: MCP auto-connect, file-watcher arming, and a
// detached schema-catalog scan (C14).
package startup

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
)

// connectionFile is the on-disk shape for DatabaseConnectionsPath. The API-
// facing model.DatabaseConnectionConfig tags ConnectionString json:"-" so it
// never leaks through an HTTP response; the config file is the one place
// that secret is read from, under its own field name.
type connectionFile struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	ConnectionString string `json:"connectionString"`
	Enabled          bool   `json:"enabled"`
}

// LoadDatabaseConnections reads DatabaseConnectionsPath. An empty path
// means the feature is unconfigured and returns (nil, nil).
func LoadDatabaseConnections(path string) ([]model.DatabaseConnectionConfig, error) {
	if path == "" {
		return nil, nil
	}
	var files []connectionFile
	if err := readJSONFile(path, &files); err != nil {
		return nil, fmt.Errorf("startup.LoadDatabaseConnections: %w", err)
	}
	out := make([]model.DatabaseConnectionConfig, len(files))
	for i, f := range files {
		out[i] = model.DatabaseConnectionConfig{
			ID:               f.ID,
			Name:             f.Name,
			Type:             model.DatabaseDialect(f.Type),
			ConnectionString: f.ConnectionString,
			Enabled:          f.Enabled,
		}
	}
	return out, nil
}

// LoadMcpServers reads McpServersPath. An empty path returns (nil, nil).
func LoadMcpServers(path string) ([]model.McpServerConfig, error) {
	if path == "" {
		return nil, nil
	}
	var out []model.McpServerConfig
	if err := readJSONFile(path, &out); err != nil {
		return nil, fmt.Errorf("startup.LoadMcpServers: %w", err)
	}
	return out, nil
}

// LoadWatchedFolders reads WatchedFoldersPath. An empty path returns
// (nil, nil).
func LoadWatchedFolders(path string) ([]model.WatchedFolder, error) {
	if path == "" {
		return nil, nil
	}
	var out []model.WatchedFolder
	if err := readJSONFile(path, &out); err != nil {
		return nil, fmt.Errorf("startup.LoadWatchedFolders: %w", err)
	}
	return out, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
