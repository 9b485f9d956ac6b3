package jwt

import (
	"context"

	"github.com/dropDatabas3/hellocards/internal/crypto"
)

// StaticKey es una única clave de API configurada (api key id + privada).
// La usan el harness de tests y los clientes que firman tokens localmente.
type StaticKey struct {
	KID     string
	Private crypto.PrivateKey
}

var (
	_ KeySource   = StaticKey{}
	_ KeyResolver = StaticKey{}
)

func (s StaticKey) Active(ctx context.Context) (string, crypto.PrivateKey, error) {
	if s.KID == "" || !s.Private.Valid() {
		return "", nil, ErrNoActiveKey
	}
	return s.KID, s.Private.Clone(), nil
}

func (s StaticKey) PublicKeyByKID(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" || kid != s.KID || !s.Private.Valid() {
		return nil, ErrKIDNotFound
	}
	return s.Private.Public(), nil
}

// StaticResolver resuelve claves públicas desde un mapa fijo kid → pública.
type StaticResolver map[string]crypto.PublicKey

func (m StaticResolver) PublicKeyByKID(ctx context.Context, kid string) (crypto.PublicKey, error) {
	pub, ok := m[kid]
	if !ok {
		return nil, ErrKIDNotFound
	}
	return pub.Clone(), nil
}
