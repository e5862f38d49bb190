package handler

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/connexus-ai/smartrag-orchestrator/internal/config"
)

// secretKeyMarkers names the substrings (case-insensitive) that mark a
// config field as sensitive; any field name containing one is masked
// entirely in the settings snapshot, per spec §6.
var secretKeyMarkers = []string{"key", "password", "secret", "token", "authorization", "connectionstring"}

func looksSecret(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Settings handles GET api/settings: an effective-configuration snapshot
// with every field whose name matches a secret marker replaced by "***".
func Settings(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, maskedSnapshot(cfg))
	}
}

// maskedSnapshot reflects over *config.Config's exported fields and masks
// any whose name matches a secret marker. DatabaseConnectionsPath,
// McpServersPath and WatchedFoldersPath are file paths, not secrets
// themselves, and are passed through.
func maskedSnapshot(cfg *config.Config) map[string]any {
	out := make(map[string]any)
	v := reflect.ValueOf(*cfg)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if looksSecret(field.Name) {
			out[field.Name] = "***"
			continue
		}
		out[field.Name] = v.Field(i).Interface()
	}
	return out
}
