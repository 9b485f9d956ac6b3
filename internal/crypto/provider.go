package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Provider es el contrato consumido por el issuer de tokens y el publisher de cards.
type Provider interface {
	GenerateKeyPair() (KeyPair, error)
	Sign(data []byte, priv PrivateKey) ([]byte, error)
	Verify(data, signature []byte, pub PublicKey) bool

	ExportPublicKey(pub PublicKey) string
	ImportPublicKey(s string) (PublicKey, error)

	ExportPrivateKey(priv PrivateKey, password string) ([]byte, error)
	ImportPrivateKey(data []byte, password string) (PrivateKey, error)
}

// Ed25519Provider implementa Provider sobre crypto/ed25519.
type Ed25519Provider struct {
	// Rand es la fuente de entropía; nil => crypto/rand.
	Rand io.Reader
	// KDF permite ajustar el costo de argon2id (tests usan parámetros bajos).
	KDF KDFParams
}

var _ Provider = (*Ed25519Provider)(nil)

// NewEd25519Provider crea un provider con crypto/rand y parámetros KDF por defecto.
func NewEd25519Provider() *Ed25519Provider {
	return &Ed25519Provider{Rand: rand.Reader, KDF: DefaultKDF}
}

func (p *Ed25519Provider) rand() io.Reader {
	if p == nil || p.Rand == nil {
		return rand.Reader
	}
	return p.Rand
}

func (p *Ed25519Provider) GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(p.rand())
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519: %w", err)
	}
	return KeyPair{Private: PrivateKey(priv), Public: PublicKey(pub)}, nil
}

func (p *Ed25519Provider) Sign(data []byte, priv PrivateKey) ([]byte, error) {
	if !priv.Valid() {
		return nil, ErrInvalidPrivateKey
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), data), nil
}

// Verify nunca entra en pánico: claves o firmas de tamaño inválido devuelven false.
func (p *Ed25519Provider) Verify(data, signature []byte, pub PublicKey) bool {
	if !pub.Valid() || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, signature)
}

func (p *Ed25519Provider) ExportPublicKey(pub PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}

func (p *Ed25519Provider) ImportPublicKey(s string) (PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub := PublicKey(b)
	if !pub.Valid() {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

func (p *Ed25519Provider) ExportPrivateKey(priv PrivateKey, password string) ([]byte, error) {
	if !priv.Valid() {
		return nil, ErrInvalidPrivateKey
	}
	kdf := DefaultKDF
	if p != nil && p.KDF.KeyLen != 0 {
		kdf = p.KDF
	}
	return seal(p.rand(), kdf, password, priv)
}

func (p *Ed25519Provider) ImportPrivateKey(data []byte, password string) (PrivateKey, error) {
	raw, err := open(data, password)
	if err != nil {
		return nil, err
	}
	priv := PrivateKey(raw)
	if !priv.Valid() {
		priv.Wipe()
		return nil, ErrInvalidPrivateKey
	}
	return priv, nil
}
