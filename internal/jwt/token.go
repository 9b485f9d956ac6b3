package jwt

import (
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const (
	// ContentType va en el header "cty" de cada access token.
	ContentType = "virgil-jwt;v=1"

	issuerPrefix   = "virgil-"
	identityPrefix = "identity-"
)

// AccessToken es el valor inmutable devuelto por el issuer.
// Raw es el JWS compacto que viaja como "Authorization: Bearer".
type AccessToken struct {
	Identity  string
	AppID     string
	KID       string
	IssuedAt  time.Time
	TTL       time.Duration
	Signature []byte
	Raw       string
}

// ExpiresAt = IssuedAt + TTL.
func (t AccessToken) ExpiresAt() time.Time { return t.IssuedAt.Add(t.TTL) }

// Expired reporta si now >= ExpiresAt.
func (t AccessToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt()) }

func (t AccessToken) String() string { return t.Raw }

type tokenClaims struct {
	jwtv5.RegisteredClaims
}

func newClaims(appID, identity string, iat time.Time, ttl time.Duration) *tokenClaims {
	return &tokenClaims{RegisteredClaims: jwtv5.RegisteredClaims{
		Issuer:    issuerPrefix + appID,
		Subject:   identityPrefix + identity,
		IssuedAt:  jwtv5.NewNumericDate(iat),
		NotBefore: jwtv5.NewNumericDate(iat),
		ExpiresAt: jwtv5.NewNumericDate(iat.Add(ttl)),
	}}
}

// toAccessToken valida el formato de iss/sub/iat/exp y arma el valor.
func (c *tokenClaims) toAccessToken(kid, raw string, sig []byte) (AccessToken, bool) {
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return AccessToken{}, false
	}
	appID, ok := strings.CutPrefix(c.Issuer, issuerPrefix)
	if !ok || appID == "" {
		return AccessToken{}, false
	}
	identity, ok := strings.CutPrefix(c.Subject, identityPrefix)
	if !ok || identity == "" {
		return AccessToken{}, false
	}
	ttl := c.ExpiresAt.Sub(c.IssuedAt.Time)
	if ttl <= 0 {
		return AccessToken{}, false
	}
	return AccessToken{
		Identity:  identity,
		AppID:     appID,
		KID:       kid,
		IssuedAt:  c.IssuedAt.Time.UTC(),
		TTL:       ttl,
		Signature: sig,
		Raw:       raw,
	}, true
}
