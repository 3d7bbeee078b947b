package proxy

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
	"github.com/google/uuid"

	"github.com/florianilch/matchctl/internal/authclient"
)

// RequestID makes sure every gateway request carries an X-Request-Id. A caller-supplied id
// is kept. The id is echoed on the response, attached to the request log entry and
// forwarded upstream unchanged, so the session transport reuses it for a retry.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(authclient.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(authclient.HeaderRequestID, id)
		}
		w.Header().Set(authclient.HeaderRequestID, id)
		httplog.SetAttrs(r.Context(), slog.String("request.id", id))

		next.ServeHTTP(w, r)
	})
}

// Recovery turns a panic in the gateway into a 500 JSON error tagged with the request id.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(r.Context(), "gateway handler panicked", "panic", rec, "path", r.URL.Path)
				writeJSONError(w, r, codeInternal, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Logging logs one entry per gateway request. Headers and bodies are never logged since
// they carry session credentials and API payloads.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		LogRequestHeaders:  []string{"Content-Type", "Origin"},
		LogResponseHeaders: []string{},

		RecoverPanics: false,
	})
}

// applyMiddlewares wraps h so the first middleware is the outermost.
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
