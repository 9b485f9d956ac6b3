package e3test

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/directory"
	"github.com/dropDatabas3/hellocards/internal/jwt"
	"github.com/dropDatabas3/hellocards/internal/keyset"
)

// DefaultTokenTTL es el ttl de los tokens que emite TokenString.
const DefaultTokenTTL = 10 * time.Minute

// Utils agrupa las operaciones que los tests end-to-end necesitan.
type Utils struct {
	Consts    Consts
	Crypto    crypto.Provider
	Issuer    *jwt.Issuer
	Directory *directory.Client
	Publisher *card.Publisher
}

// NewUtils arma issuer, cliente del directorio y publisher a partir de c.
func NewUtils(c Consts, p crypto.Provider, hc *http.Client) (*Utils, error) {
	if p == nil {
		p = crypto.NewEd25519Provider()
	}
	priv, err := c.APIKey(p)
	if err != nil {
		return nil, err
	}
	servicePub, err := c.ServiceKey(p)
	if err != nil {
		return nil, err
	}
	iss := jwt.NewIssuer(c.AppID, jwt.StaticKey{KID: c.APIKeyID, Private: priv})
	dir := directory.NewClient(c.ServiceURL, hc)
	tokens := jwt.NewCachingProvider(jwt.NewGeneratorProvider(iss, DefaultTokenTTL))
	return &Utils{
		Consts:    c,
		Crypto:    p,
		Issuer:    iss,
		Directory: dir,
		Publisher: card.NewPublisher(p, tokens, dir, card.NewVerifier(p, servicePub)),
	}, nil
}

// Token emite un token para identity con el ttl dado.
func (u *Utils) Token(ctx context.Context, identity string, ttl time.Duration) (jwt.AccessToken, error) {
	return u.Issuer.IssueToken(ctx, identity, ttl)
}

// TokenString emite un token con DefaultTokenTTL y devuelve su forma compacta.
func (u *Utils) TokenString(ctx context.Context, identity string) (string, error) {
	t, err := u.Token(ctx, identity, DefaultTokenTTL)
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// PublishCard genera un key pair y publica una card para identity
// (uuid aleatorio si identity es vacío).
func (u *Utils) PublishCard(ctx context.Context, identity string) (*card.Card, crypto.KeyPair, error) {
	if identity == "" {
		identity = uuid.NewString()
	}
	kp, err := u.Crypto.GenerateKeyPair()
	if err != nil {
		return nil, crypto.KeyPair{}, err
	}
	c, err := u.Publisher.Publish(ctx, identity, kp)
	if err != nil {
		return nil, crypto.KeyPair{}, err
	}
	return c, kp, nil
}

// PublishRandomCard publica una card para una identity aleatoria.
func (u *Utils) PublishRandomCard(ctx context.Context) (*card.Card, error) {
	c, _, err := u.PublishCard(ctx, "")
	return c, err
}

// PublicKeysEqual compara dos key sets sin importar el orden (multiset).
func (u *Utils) PublicKeysEqual(a, b []crypto.PublicKey) bool {
	return keyset.Equal(a, b)
}
