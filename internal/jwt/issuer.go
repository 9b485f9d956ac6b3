package jwt

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/metrics"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
)

// KeySource entrega la clave de firma activa. La privada devuelta es una copia
// propiedad del caller; el issuer la borra después de firmar.
type KeySource interface {
	Active(ctx context.Context) (kid string, priv crypto.PrivateKey, err error)
}

// Issuer firma access tokens EdDSA para una app.
type Issuer struct {
	AppID string
	Keys  KeySource
	// Now permite fijar el reloj en tests; nil => time.Now.
	Now func() time.Time
}

func NewIssuer(appID string, keys KeySource) *Issuer {
	return &Issuer{AppID: appID, Keys: keys}
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// IssueToken emite un token para identity con vida ttl.
// El JWT trabaja con segundos: ttl < 1s es inválido y issuedAt se trunca al segundo.
func (i *Issuer) IssueToken(ctx context.Context, identity string, ttl time.Duration) (AccessToken, error) {
	tok, err := i.issue(ctx, identity, ttl)
	switch {
	case err == nil:
		metrics.TokensIssued.WithLabelValues(metrics.ResultOK).Inc()
	case errors.Is(err, domain.ErrInvalidArgument):
		metrics.TokensIssued.WithLabelValues(metrics.ResultInvalid).Inc()
	case errors.Is(err, domain.ErrIssuerUnavailable):
		metrics.TokensIssued.WithLabelValues(metrics.ResultUnavailable).Inc()
		logger.From(ctx).Warn("token_issue_failed", logger.Identity(identity), logger.Err(err))
	default:
		metrics.TokensIssued.WithLabelValues(metrics.ResultError).Inc()
	}
	return tok, err
}

func (i *Issuer) issue(ctx context.Context, identity string, ttl time.Duration) (AccessToken, error) {
	if strings.TrimSpace(identity) == "" {
		return AccessToken{}, fmt.Errorf("%w: empty identity", domain.ErrInvalidArgument)
	}
	if ttl < time.Second {
		return AccessToken{}, fmt.Errorf("%w: ttl must be at least 1s, got %s", domain.ErrInvalidArgument, ttl)
	}
	ttl = ttl.Truncate(time.Second)
	if i.Keys == nil {
		return AccessToken{}, fmt.Errorf("%w: no key source", domain.ErrIssuerUnavailable)
	}

	kid, priv, err := i.Keys.Active(ctx)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: %v", domain.ErrIssuerUnavailable, err)
	}
	defer priv.Wipe()
	if !priv.Valid() {
		return AccessToken{}, fmt.Errorf("%w: %v", domain.ErrIssuerUnavailable, crypto.ErrInvalidPrivateKey)
	}

	iat := i.now().UTC().Truncate(time.Second)
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, newClaims(i.AppID, identity, iat, ttl))
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	tk.Header["cty"] = ContentType

	signing, err := tk.SigningString()
	if err != nil {
		return AccessToken{}, fmt.Errorf("signing string: %w", err)
	}
	sig, err := jwtv5.SigningMethodEdDSA.Sign(signing, ed25519.PrivateKey(priv))
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: sign: %v", domain.ErrIssuerUnavailable, err)
	}

	return AccessToken{
		Identity:  identity,
		AppID:     i.AppID,
		KID:       kid,
		IssuedAt:  iat,
		TTL:       ttl,
		Signature: sig,
		Raw:       signing + "." + base64.RawURLEncoding.EncodeToString(sig),
	}, nil
}
