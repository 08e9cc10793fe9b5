package http

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
	"github.com/dropDatabas3/wxbridge/internal/rate"
)

// WithRateLimit corta por IP los endpoints que terminan pegando contra la
// plataforma remota. Si el limiter falla (redis caído) el request pasa:
// preferimos servir a cortar por una falla de infraestructura propia.
func WithRateLimit(l rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				}
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "demasiados requests, probá más tarde", 130216)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
