package core

import "time"

type KeyStatus string

const (
	KeyActive   KeyStatus = "active"
	KeyRetiring KeyStatus = "retiring"
	KeyRetired  KeyStatus = "retired"
)

// SigningKey es una clave del issuer de tokens.
// PrivateKey puede venir vacía en los listados públicos.
type SigningKey struct {
	KID        string
	Alg        string // "EdDSA"
	PublicKey  []byte
	PrivateKey []byte
	Status     KeyStatus
	NotBefore  time.Time
	CreatedAt  time.Time
	RotatedAt  *time.Time
}
