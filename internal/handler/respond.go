package handler

import (
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErrorMessage writes a bare {success:false, error} envelope at status.
func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// writeError maps an apperr.Kind to its HTTP status per spec §7 and writes
// the envelope. Errors not tagged with apperr.New/Wrap are treated as Fatal.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindProvider:
		status = http.StatusBadGateway
	case apperr.KindSchema:
		status = http.StatusUnprocessableEntity
	case apperr.KindTimeout:
		status = http.StatusGatewayTimeout
	case apperr.KindDocumentSkipped:
		status = http.StatusConflict
	case apperr.KindFatal:
		status = http.StatusInternalServerError
	}
	writeErrorMessage(w, status, err.Error())
}
