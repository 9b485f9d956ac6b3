package middlewares

import (
	"context"

	"github.com/dropDatabas3/hellocards/internal/jwt"
)

type ctxKey string

const (
	ctxTokenKey     ctxKey = "access_token"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithToken inyecta el access token validado.
func WithToken(ctx context.Context, t jwt.AccessToken) context.Context {
	return context.WithValue(ctx, ctxTokenKey, t)
}

// GetToken devuelve el token validado por RequireToken.
func GetToken(ctx context.Context) (jwt.AccessToken, bool) {
	t, ok := ctx.Value(ctxTokenKey).(jwt.AccessToken)
	return t, ok
}

// GetIdentity devuelve la identity del token o "".
func GetIdentity(ctx context.Context) string {
	t, _ := GetToken(ctx)
	return t.Identity
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}
