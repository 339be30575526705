package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/platform/logger"
)

// APIKeyMiddleware rejects requests whose X-API-Key header does not match the
// configured key. An empty configured key disables the check; that is only
// acceptable when the service is not reachable from outside.
func APIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.FromContext(r.Context()).Warn("rejected request with invalid api key",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr)
				RespondWithError(w, r, http.StatusUnauthorized, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
