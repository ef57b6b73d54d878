package api

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
)

// errorResponse is the error body for failed queries. Details carries the
// underlying error text.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// messageResponse is the body for lookups that found nothing.
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON encodes v as JSON and writes it to the response.
// It buffers the encoding to detect errors before writing headers.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
		writeErrorFallback(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// writeError writes a JSON error response with consistent format.
// For 5xx errors, the underlying error is logged and returned as details.
func writeError(w http.ResponseWriter, status int, public string, err error) {
	if public == "" {
		public = http.StatusText(status)
	}
	resp := errorResponse{Error: public}
	if status >= 500 && err != nil {
		slog.Error("request failed", "error", err)
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeQueryError answers a failed storage query.
func writeQueryError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Database query failed", err)
}

// writeErrorFallback writes a plain text error when JSON encoding fails.
func writeErrorFallback(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
