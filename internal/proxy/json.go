package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/florianilch/matchctl/internal/authclient"
)

// Error codes returned by the gateway itself. Errors answered by the upstream API pass
// through untouched.
const (
	codeSessionExpired = "session_expired"
	codeUpstream       = "upstream_error"
	codeInternal       = "internal_error"
)

// ErrorResponse is the body of an error produced by the gateway.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode JSON response", "error", err)
	}
}

// writeJSONError answers r with an ErrorResponse carrying the request's X-Request-Id.
func writeJSONError(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	writeJSON(w, r, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: r.Header.Get(authclient.HeaderRequestID),
	}, status)
}
