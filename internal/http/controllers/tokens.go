package controllers

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/hellocards/internal/http/errors"
	"github.com/dropDatabas3/hellocards/internal/http/helpers"
	"github.com/dropDatabas3/hellocards/internal/jwt"
)

type TokenIssuer interface {
	IssueToken(ctx context.Context, identity string, ttl time.Duration) (jwt.AccessToken, error)
}

// TokenController emite tokens de desarrollo. Solo se monta con issuer.dev_endpoint.
type TokenController struct {
	issuer     TokenIssuer
	defaultTTL time.Duration
}

func NewTokenController(iss TokenIssuer, defaultTTL time.Duration) *TokenController {
	return &TokenController{issuer: iss, defaultTTL: defaultTTL}
}

type tokenRequest struct {
	Identity   string `json:"identity"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	KID       string `json:"kid"`
	ExpiresAt int64  `json:"expires_at"`
}

// Issue maneja POST /token
func (c *TokenController) Issue(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	ttl := c.defaultTTL
	if req.TTLSeconds != 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	tok, err := c.issuer.IssueToken(r.Context(), req.Identity, ttl)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, tokenResponse{Token: tok.Raw, KID: tok.KID, ExpiresAt: tok.ExpiresAt().Unix()})
}
