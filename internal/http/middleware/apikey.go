package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/straye-as/device-importer/internal/domain"
	"go.uber.org/zap"
)

// APIKeyHeader is the request header carrying the API key
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests that do not present the configured key.
// With an empty key every request is rejected.
func APIKey(key string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validateAPIKey(r.Header.Get(APIKeyHeader), key) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("request rejected: invalid or missing API key",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", r.Header.Get(RequestIDHeader)),
			)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(domain.APIError{
				Type:   domain.ErrorTypeUnauthorized,
				Title:  http.StatusText(http.StatusUnauthorized),
				Status: http.StatusUnauthorized,
				Detail: "A valid " + APIKeyHeader + " header is required",
			})
		})
	}
}

func validateAPIKey(presented, expected string) bool {
	if expected == "" || presented == "" {
		return false
	}
	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
