package handler

import (
	"encoding/json"
	"net/http"

	"shopfront/internal/upstream"
)

// ErrorResponse is the JSON shape of every error the gateway reports.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeUpstreamError relays a storefront API failure, keeping its status
// and field-level errors. Anything that isn't an API error is a 502: the
// gateway could not reach or understand the upstream.
func writeUpstreamError(w http.ResponseWriter, err error) {
	if apiErr, ok := upstream.AsError(err); ok {
		writeJSON(w, apiErr.Status, ErrorResponse{
			Error:  apiErr.FlatMessage(),
			Fields: apiErr.Fields,
		})
		return
	}
	writeError(w, http.StatusBadGateway, "Storefront API unavailable")
}
