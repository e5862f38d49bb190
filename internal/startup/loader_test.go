package startup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDatabaseConnections_EmptyPathReturnsNil(t *testing.T) {
	conns, err := LoadDatabaseConnections("")
	if err != nil || conns != nil {
		t.Fatalf("expected nil, nil for empty path, got %v, %v", conns, err)
	}
}

func TestLoadDatabaseConnections_ParsesConnectionString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbs.json")
	body := `[{"id": "db1", "name": "Sales", "type": "postgres", "connectionString": "postgres://u:p@host/db", "enabled": true}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conns, err := LoadDatabaseConnections(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conns) != 1 || conns[0].ConnectionString != "postgres://u:p@host/db" {
		t.Errorf("expected connection string to round-trip, got %+v", conns)
	}
	if !conns[0].Enabled || conns[0].ID != "db1" {
		t.Errorf("unexpected parsed connection: %+v", conns[0])
	}
}

func TestLoadMcpServers_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	body := `[{"serverId": "s1", "name": "tools", "endpoint": "https://example.com/mcp", "autoConnect": true}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	servers, err := LoadMcpServers(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 1 || !servers[0].AutoConnect || servers[0].Endpoint != "https://example.com/mcp" {
		t.Errorf("unexpected parsed server: %+v", servers)
	}
}

func TestLoadWatchedFolders_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folders.json")
	body := `[{"folderId": "f1", "path": "incoming", "subdirectories": true, "allowedExtensions": [".pdf", ".txt"]}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	folders, err := LoadWatchedFolders(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(folders) != 1 || !folders[0].Subdirectories || len(folders[0].AllowedExtensions) != 2 {
		t.Errorf("unexpected parsed folder: %+v", folders)
	}
}

func TestLoadWatchedFolders_MalformedJSONErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadWatchedFolders(path); err == nil {
		t.Error("expected malformed JSON to error")
	}
}
