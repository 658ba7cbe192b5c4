package middleware

import (
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/utils"
)

// Recoverer turns handler panics into a 500 error envelope.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("Request failed",
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				utils.RespondWithErrorResponse(w, http.StatusInternalServerError, utils.ErrorResponse{
					Error:     "InternalServerError",
					Message:   "An internal error occurred",
					RequestID: chimw.GetReqID(r.Context()),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
