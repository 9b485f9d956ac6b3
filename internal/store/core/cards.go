package core

import "time"

// CardSignature es una firma sobre el snapshot de la card.
// Signer: "self" o "virgil" (firma del servicio).
type CardSignature struct {
	Signer    string
	Signature []byte
}

// CardRecord es la card tal como la persiste el directorio.
type CardRecord struct {
	ID              string
	Identity        string
	ContentSnapshot []byte
	Signatures      []CardSignature
	CreatedAt       time.Time
	PreviousCardID  string
	Outdated        bool
	RevokedAt       *time.Time
}

// Active indica si la card sigue siendo publicable en búsquedas.
func (c *CardRecord) Active() bool {
	return c != nil && !c.Outdated && c.RevokedAt == nil
}

// Clone devuelve una copia profunda.
func (c CardRecord) Clone() CardRecord {
	out := c
	out.ContentSnapshot = append([]byte(nil), c.ContentSnapshot...)
	out.Signatures = make([]CardSignature, len(c.Signatures))
	for i, s := range c.Signatures {
		out.Signatures[i] = CardSignature{Signer: s.Signer, Signature: append([]byte(nil), s.Signature...)}
	}
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		out.RevokedAt = &t
	}
	return out
}
