package card

import (
	"fmt"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
)

// Verifier valida las firmas de una card: auto-firma y, si hay ServicePublicKey,
// la firma del directorio.
type Verifier struct {
	Crypto           crypto.Provider
	ServicePublicKey crypto.PublicKey
	// SkipSelf desactiva la verificación de la auto-firma.
	SkipSelf bool
}

func NewVerifier(p crypto.Provider, servicePub crypto.PublicKey) *Verifier {
	return &Verifier{Crypto: p, ServicePublicKey: servicePub}
}

func (v *Verifier) Verify(c *Card) error {
	p := v.Crypto
	if p == nil {
		p = crypto.NewEd25519Provider()
	}
	if !v.SkipSelf {
		if !p.Verify(c.snapshot, c.Signature, c.PublicKey) {
			return fmt.Errorf("%w: invalid self signature for card %q", domain.ErrSignature, c.ID)
		}
	}
	if len(v.ServicePublicKey) > 0 {
		sig, ok := c.signatureBy(SignerService)
		if !ok {
			return fmt.Errorf("%w: card %q has no service signature", domain.ErrSignature, c.ID)
		}
		if !p.Verify(c.snapshot, sig, v.ServicePublicKey) {
			return fmt.Errorf("%w: invalid service signature for card %q", domain.ErrSignature, c.ID)
		}
	}
	return nil
}

func (c *Card) signatureBy(signer string) ([]byte, bool) {
	for _, s := range c.signatures {
		if s.Signer == signer {
			return s.Signature, true
		}
	}
	return nil, false
}
