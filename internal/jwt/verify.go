package jwt

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/metrics"
)

// KeyResolver resuelve la clave pública del issuer por kid.
type KeyResolver interface {
	PublicKeyByKID(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// KeyResolverFunc adapta una función a KeyResolver.
type KeyResolverFunc func(ctx context.Context, kid string) (crypto.PublicKey, error)

func (f KeyResolverFunc) PublicKeyByKID(ctx context.Context, kid string) (crypto.PublicKey, error) {
	return f(ctx, kid)
}

func newParser(now time.Time) *jwtv5.Parser {
	return jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodEdDSA.Alg()}),
		jwtv5.WithTimeFunc(func() time.Time { return now }),
		jwtv5.WithIssuedAt(),
		jwtv5.WithExpirationRequired(),
	)
}

// VerifyToken es total: devuelve true solo si la firma verifica con issuerPub,
// los claims tienen el formato esperado y issuedAt <= now < issuedAt+ttl.
// Nunca devuelve error ni entra en pánico.
func VerifyToken(raw string, issuerPub crypto.PublicKey, now time.Time) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
		if ok {
			metrics.TokenVerifications.WithLabelValues(metrics.ResultValid).Inc()
		} else {
			metrics.TokenVerifications.WithLabelValues(metrics.ResultInvalid).Inc()
		}
	}()
	if !issuerPub.Valid() || raw == "" {
		return false
	}
	_, err := parse(raw, now, func(string) (crypto.PublicKey, error) { return issuerPub, nil })
	return err == nil
}

// ParseToken verifica el token resolviendo la clave por kid y devuelve el AccessToken.
// Cualquier fallo se reporta como domain.ErrUnauthorized.
func ParseToken(ctx context.Context, raw string, keys KeyResolver, now time.Time) (AccessToken, error) {
	if raw == "" || keys == nil {
		return AccessToken{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, ErrInvalidToken)
	}
	tok, err := parse(raw, now, func(kid string) (crypto.PublicKey, error) {
		if kid == "" {
			return nil, errors.New("kid_missing")
		}
		return keys.PublicKeyByKID(ctx, kid)
	})
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return tok, nil
}

func parse(raw string, now time.Time, pubFor func(kid string) (crypto.PublicKey, error)) (AccessToken, error) {
	var kid string
	claims := &tokenClaims{}
	tk, err := newParser(now).ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
		kid, _ = t.Header["kid"].(string)
		pub, err := pubFor(kid)
		if err != nil {
			return nil, err
		}
		if !pub.Valid() {
			return nil, crypto.ErrInvalidPublicKey
		}
		return ed25519.PublicKey(pub), nil
	})
	if err != nil || !tk.Valid {
		if err == nil {
			err = ErrInvalidToken
		}
		return AccessToken{}, err
	}
	if cty, _ := tk.Header["cty"].(string); cty != ContentType {
		return AccessToken{}, fmt.Errorf("%w: unexpected cty %q", ErrInvalidToken, cty)
	}
	out, ok := claims.toAccessToken(kid, raw, tk.Signature)
	if !ok {
		return AccessToken{}, fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}
	return out, nil
}
