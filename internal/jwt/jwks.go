package jwt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/store/core"
)

type jwk struct {
	Kty string `json:"kty"` // "OKP"
	Crv string `json:"crv"` // "Ed25519"
	Kid string `json:"kid"`
	Alg string `json:"alg"` // "EdDSA"
	Use string `json:"use"` // "sig"
	X   string `json:"x"`   // base64url(pub)
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

func buildJWKS(keys []core.SigningKey) ([]byte, error) {
	out := jwks{Keys: make([]jwk, 0, len(keys))}
	for _, k := range keys {
		if len(k.PublicKey) == 0 {
			continue
		}
		out.Keys = append(out.Keys, jwk{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: k.KID,
			Alg: "EdDSA",
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(k.PublicKey),
		})
	}
	return json.Marshal(out)
}

// ParseJWKS extrae las claves Ed25519 de un documento JWKS. Ignora otros kty/crv.
func ParseJWKS(data []byte) (StaticResolver, error) {
	var doc jwks
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	out := make(StaticResolver, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "OKP" || k.Crv != "Ed25519" || k.Kid == "" {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, fmt.Errorf("parse jwks kid %s: %w", k.Kid, err)
		}
		pub := crypto.PublicKey(raw)
		if !pub.Valid() {
			return nil, fmt.Errorf("parse jwks kid %s: %w", k.Kid, crypto.ErrInvalidPublicKey)
		}
		out[k.Kid] = pub
	}
	return out, nil
}
