package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/hellocards/internal/http/errors"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
	"github.com/dropDatabas3/hellocards/internal/rate"
)

// clientIP extrae la IP del cliente, considerando proxies.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		return strings.TrimSpace(strings.Split(xf, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IdentityRateKey usa la identity del token (requiere RequireToken antes) y cae a la IP.
func IdentityRateKey(r *http.Request) string {
	if id := GetIdentity(r.Context()); id != "" {
		return "publish:" + id
	}
	return "publish-ip:" + clientIP(r)
}

// WithRateLimit limita con l; sin limiter no hace nada.
// Ante error del limiter deja pasar el request.
func WithRateLimit(l rate.Limiter, keyFn RateKeyFunc) Middleware {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if keyFn == nil {
		keyFn = IdentityRateKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate_limit_error", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if res.WindowTTL > 0 {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.WindowTTL).Unix(), 10))
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
