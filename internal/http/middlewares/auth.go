package middlewares

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/hellocards/internal/http/errors"
	"github.com/dropDatabas3/hellocards/internal/http/helpers"
	"github.com/dropDatabas3/hellocards/internal/jwt"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
)

// AuthConfig configura RequireToken.
type AuthConfig struct {
	Keys jwt.KeyResolver
	// AppID, si no es vacío, exige que el token sea de esa aplicación.
	AppID string
	Now   func() time.Time
}

// RequireToken valida Authorization: Bearer <JWT> y guarda el AccessToken en el contexto.
// Responde 401 si falta o no valida.
func RequireToken(cfg AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := helpers.BearerToken(r)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="cards", error="invalid_token", error_description="missing bearer token"`)
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}

			now := time.Now()
			if cfg.Now != nil {
				now = cfg.Now()
			}
			tok, err := jwt.ParseToken(r.Context(), raw, cfg.Keys, now)
			if err == nil && cfg.AppID != "" && tok.AppID != cfg.AppID {
				err = jwt.ErrInvalidToken
			}
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="cards", error="invalid_token"`)
				errors.WriteError(w, errors.ErrTokenInvalid.WithCause(err))
				return
			}

			ctx := WithToken(r.Context(), tok)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Identity(tok.Identity), logger.KID(tok.KID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
