package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
)

// PublicKey es la clave pública Ed25519 en bytes crudos (32 bytes).
// Inmutable una vez generada: los helpers siempre devuelven copias.
type PublicKey []byte

// ID devuelve el identificador corto de la clave: hex(sha512(pub)[:8]).
func (k PublicKey) ID() string {
	sum := sha512.Sum512(k)
	return hex.EncodeToString(sum[:8])
}

// Equal compara byte a byte.
func (k PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(k, other)
}

// Valid indica si la longitud corresponde a una clave Ed25519.
func (k PublicKey) Valid() bool {
	return len(k) == ed25519.PublicKeySize
}

// Clone devuelve una copia independiente.
func (k PublicKey) Clone() PublicKey {
	if k == nil {
		return nil
	}
	out := make(PublicKey, len(k))
	copy(out, k)
	return out
}

// PrivateKey es la clave privada Ed25519 (seed + pública, 64 bytes).
// Pertenece exclusivamente a quien la generó.
type PrivateKey []byte

// Public deriva la clave pública.
func (k PrivateKey) Public() PublicKey {
	if len(k) != ed25519.PrivateKeySize {
		return nil
	}
	pub := ed25519.PrivateKey(k).Public().(ed25519.PublicKey)
	return PublicKey(pub).Clone()
}

// Valid indica si la longitud corresponde a una clave Ed25519.
func (k PrivateKey) Valid() bool {
	return len(k) == ed25519.PrivateKeySize
}

// Clone devuelve una copia independiente.
func (k PrivateKey) Clone() PrivateKey {
	if k == nil {
		return nil
	}
	out := make(PrivateKey, len(k))
	copy(out, k)
	return out
}

// Wipe pone a cero el material de la clave.
func (k PrivateKey) Wipe() {
	for i := range k {
		k[i] = 0
	}
}

// KeyPair agrupa ambas mitades.
type KeyPair struct {
	Private PrivateKey
	Public  PublicKey
}

// Valid verifica que ambas mitades existan y que la pública corresponda a la privada.
func (kp KeyPair) Valid() bool {
	if !kp.Private.Valid() || !kp.Public.Valid() {
		return false
	}
	return kp.Private.Public().Equal(kp.Public)
}
