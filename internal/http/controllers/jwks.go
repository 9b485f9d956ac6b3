package controllers

import (
	"context"
	"net/http"

	httperrors "github.com/dropDatabas3/hellocards/internal/http/errors"
)

type JWKSSource interface {
	JWKSJSON(ctx context.Context) ([]byte, error)
}

type JWKSController struct {
	keys JWKSSource
}

func NewJWKSController(keys JWKSSource) *JWKSController {
	return &JWKSController{keys: keys}
}

// Get maneja GET /.well-known/jwks.json
func (c *JWKSController) Get(w http.ResponseWriter, r *http.Request) {
	data, err := c.keys.JWKSJSON(r.Context())
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
