// Package card arma, firma, parsea y publica cards: el vínculo firmado entre una
// identity y una clave pública registrado en el directorio.
package card

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
)

const (
	Version = "5.0"

	SignerSelf    = "self"
	SignerService = "virgil"
)

// Content es el contenido firmado de la card. Su JSON (orden de campos fijo)
// es el content snapshot.
type Content struct {
	Identity       string `json:"identity"`
	PublicKey      []byte `json:"public_key"`
	Version        string `json:"version"`
	CreatedAt      int64  `json:"created_at"`
	PreviousCardID string `json:"previous_card_id,omitempty"`
}

// Snapshot serializa el contenido de forma determinística.
func (c Content) Snapshot() ([]byte, error) {
	return json.Marshal(c)
}

type RawSignature struct {
	Signer    string `json:"signer"`
	Signature []byte `json:"signature"`
}

// RawCard es la forma en que la card viaja y se persiste.
type RawCard struct {
	ID              string         `json:"id,omitempty"`
	ContentSnapshot []byte         `json:"content_snapshot"`
	Signatures      []RawSignature `json:"signatures"`
}

// SignatureBy devuelve la firma del signer dado.
func (r RawCard) SignatureBy(signer string) ([]byte, bool) {
	for _, s := range r.Signatures {
		if s.Signer == signer {
			return s.Signature, true
		}
	}
	return nil, false
}

// Card es la vista parseada e inmutable de una RawCard.
type Card struct {
	ID             string
	Identity       string
	PublicKey      crypto.PublicKey
	Version        string
	CreatedAt      time.Time
	PreviousCardID string
	IsOutdated     bool
	// Signature es la auto-firma sobre el snapshot.
	Signature []byte

	snapshot   []byte
	signatures []RawSignature
}

// Snapshot devuelve una copia del content snapshot.
func (c *Card) Snapshot() []byte { return append([]byte(nil), c.snapshot...) }

// Raw reconstruye la RawCard (copias).
func (c *Card) Raw() RawCard {
	sigs := make([]RawSignature, len(c.signatures))
	for i, s := range c.signatures {
		sigs[i] = RawSignature{Signer: s.Signer, Signature: append([]byte(nil), s.Signature...)}
	}
	return RawCard{ID: c.ID, ContentSnapshot: c.Snapshot(), Signatures: sigs}
}

// ParseContent decodifica y valida un snapshot.
func ParseContent(snapshot []byte) (Content, error) {
	var c Content
	if err := json.Unmarshal(snapshot, &c); err != nil {
		return Content{}, fmt.Errorf("%w: content snapshot: %v", domain.ErrInvalidArgument, err)
	}
	if strings.TrimSpace(c.Identity) == "" {
		return Content{}, fmt.Errorf("%w: card without identity", domain.ErrInvalidArgument)
	}
	if !crypto.PublicKey(c.PublicKey).Valid() {
		return Content{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, crypto.ErrInvalidPublicKey)
	}
	if c.Version != Version {
		return Content{}, fmt.Errorf("%w: unsupported card version %q", domain.ErrInvalidArgument, c.Version)
	}
	return c, nil
}

// ParseRawCard parsea la RawCard y, si verifier != nil, valida sus firmas.
func ParseRawCard(raw RawCard, verifier *Verifier) (*Card, error) {
	content, err := ParseContent(raw.ContentSnapshot)
	if err != nil {
		return nil, err
	}
	self, _ := raw.SignatureBy(SignerSelf)

	c := &Card{
		ID:             raw.ID,
		Identity:       content.Identity,
		PublicKey:      crypto.PublicKey(content.PublicKey).Clone(),
		Version:        content.Version,
		CreatedAt:      time.Unix(content.CreatedAt, 0).UTC(),
		PreviousCardID: content.PreviousCardID,
		Signature:      append([]byte(nil), self...),
		snapshot:       append([]byte(nil), raw.ContentSnapshot...),
	}
	c.signatures = make([]RawSignature, 0, len(raw.Signatures))
	for _, s := range raw.Signatures {
		c.signatures = append(c.signatures, RawSignature{Signer: s.Signer, Signature: append([]byte(nil), s.Signature...)})
	}

	if verifier != nil {
		if err := verifier.Verify(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithOutdated devuelve una copia marcada como outdated.
func (c *Card) WithOutdated(outdated bool) *Card {
	cp := *c
	cp.IsOutdated = outdated
	return &cp
}

// NewRawCard arma el snapshot, lo auto-firma con kp.Private y verifica la firma
// con kp.Public antes de devolverlo.
func NewRawCard(p crypto.Provider, identity string, kp crypto.KeyPair, previousCardID string, now time.Time) (RawCard, error) {
	if strings.TrimSpace(identity) == "" {
		return RawCard{}, fmt.Errorf("%w: empty identity", domain.ErrInvalidArgument)
	}
	if !kp.Private.Valid() || !kp.Public.Valid() {
		return RawCard{}, fmt.Errorf("%w: incomplete key pair", domain.ErrInvalidArgument)
	}

	snapshot, err := Content{
		Identity:       identity,
		PublicKey:      kp.Public.Clone(),
		Version:        Version,
		CreatedAt:      now.Unix(),
		PreviousCardID: previousCardID,
	}.Snapshot()
	if err != nil {
		return RawCard{}, err
	}

	sig, err := p.Sign(snapshot, kp.Private)
	if err != nil {
		return RawCard{}, fmt.Errorf("%w: self sign: %v", domain.ErrSignature, err)
	}
	if !p.Verify(snapshot, sig, kp.Public) {
		return RawCard{}, fmt.Errorf("%w: public key does not match private key", domain.ErrSignature)
	}
	return RawCard{
		ContentSnapshot: snapshot,
		Signatures:      []RawSignature{{Signer: SignerSelf, Signature: sig}},
	}, nil
}
