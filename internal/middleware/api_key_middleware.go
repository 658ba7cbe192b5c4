package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/auth"
	"github.com/Septimus4/Futurisys/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// APIKeyRecordKey is the context key for storing the authenticated caller
	APIKeyRecordKey ContextKey = "apiKeyRecord"
)

// APIKeyMiddleware rejects requests without a valid key and adds the caller
// record to the request context. A nil store lets every request through.
func APIKeyMiddleware(store auth.APIKeyStore, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyRecord, err := store.Lookup(r.Context(), auth.KeyFromRequest(r))
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrMissingKey):
					utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized", "Missing API key")
				case errors.Is(err, auth.ErrKeyNotFound):
					logger.Warn("Rejected invalid API key",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr))
					utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized", "Invalid API key")
				default:
					logger.Error("API key lookup failed", zap.Error(err))
					utils.RespondWithError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
				}
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyRecordKey, keyRecord)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKeyRecord retrieves the caller record from the request context
func GetAPIKeyRecord(ctx context.Context) (*auth.APIKeyRecord, bool) {
	record, ok := ctx.Value(APIKeyRecordKey).(*auth.APIKeyRecord)
	return record, ok
}

// CallerKeyHint returns the masked key of the authenticated caller, or "".
func CallerKeyHint(ctx context.Context) string {
	if record, ok := GetAPIKeyRecord(ctx); ok {
		return record.Hint
	}
	return ""
}
