package middleware

import (
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/ratelimit"
	"github.com/Septimus4/Futurisys/internal/utils"
)

// RateLimitMiddleware applies limiter per caller. Callers are identified by
// their key hint, or by remote address when authentication is off. Limiter
// errors let the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := callerID(r)
			allowed, err := limiter.Allow(r.Context(), caller)
			if err != nil {
				logger.Warn("Rate limiter unavailable", zap.String("caller", caller), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(ratelimit.DefaultWindow.Seconds())))
				utils.RespondWithError(w, http.StatusTooManyRequests, "RateLimited", "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerID(r *http.Request) string {
	if hint := CallerKeyHint(r.Context()); hint != "" {
		return "key:" + hint
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
