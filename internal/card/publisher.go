package card

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/jwt"
	"github.com/dropDatabas3/hellocards/internal/metrics"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
)

// Directory es el lado del directorio que usa el publisher.
// Los errores vuelven ya mapeados a la taxonomía de domain.
type Directory interface {
	RegisterCard(ctx context.Context, raw RawCard, token jwt.AccessToken) (RawCard, error)
}

// tokenForgetter lo implementan los providers que cachean tokens.
type tokenForgetter interface {
	Forget(identity string)
}

type Publisher struct {
	Crypto    crypto.Provider
	Tokens    jwt.TokenProvider
	Directory Directory
	// Verifier valida la card devuelta por el directorio; nil => solo auto-firma.
	Verifier *Verifier
	// Now permite fijar el reloj en tests; nil => time.Now.
	Now func() time.Time
}

func NewPublisher(p crypto.Provider, tokens jwt.TokenProvider, dir Directory, v *Verifier) *Publisher {
	return &Publisher{Crypto: p, Tokens: tokens, Directory: dir, Verifier: v}
}

// Publish registra una card nueva para identity. No es idempotente: cada llamada
// exitosa produce un card id distinto.
func (p *Publisher) Publish(ctx context.Context, identity string, kp crypto.KeyPair) (*Card, error) {
	return p.publish(ctx, identity, kp, "")
}

// PublishReplacing registra una card que reemplaza a previousCardID (rotación de clave).
// El directorio marca la anterior como outdated.
func (p *Publisher) PublishReplacing(ctx context.Context, identity string, kp crypto.KeyPair, previousCardID string) (*Card, error) {
	if previousCardID == "" {
		return nil, fmt.Errorf("%w: empty previous card id", domain.ErrInvalidArgument)
	}
	return p.publish(ctx, identity, kp, previousCardID)
}

func (p *Publisher) publish(ctx context.Context, identity string, kp crypto.KeyPair, previousCardID string) (*Card, error) {
	c, err := p.doPublish(ctx, identity, kp, previousCardID)
	log := logger.From(ctx).With(logger.Identity(identity))
	switch {
	case err == nil:
		metrics.CardsPublished.WithLabelValues(metrics.ResultOK).Inc()
		log.Info("card_published", logger.CardID(c.ID), logger.KeyID(c.PublicKey.ID()))
	case errors.Is(err, domain.ErrDuplicateIdentity):
		metrics.CardsPublished.WithLabelValues(metrics.ResultDuplicate).Inc()
	case errors.Is(err, domain.ErrSignature):
		metrics.CardsPublished.WithLabelValues(metrics.ResultSignature).Inc()
		log.Error("card_publish_signature_error", logger.Err(err))
	case domain.IsTransient(err):
		metrics.CardsPublished.WithLabelValues(metrics.ResultNetwork).Inc()
		log.Warn("card_publish_transient_error", logger.Err(err))
	default:
		metrics.CardsPublished.WithLabelValues(metrics.ResultError).Inc()
	}
	return c, err
}

func (p *Publisher) doPublish(ctx context.Context, identity string, kp crypto.KeyPair, previousCardID string) (*Card, error) {
	if p.Crypto == nil || p.Tokens == nil || p.Directory == nil {
		return nil, fmt.Errorf("%w: publisher not configured", domain.ErrInvalidArgument)
	}
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	raw, err := NewRawCard(p.Crypto, identity, kp, previousCardID, now)
	if err != nil {
		return nil, err
	}

	registered, err := p.register(ctx, identity, raw)
	if err != nil {
		return nil, err
	}

	if registered.ID == "" {
		return nil, fmt.Errorf("%w: directory returned a card without id", domain.ErrNetwork)
	}
	if !bytes.Equal(registered.ContentSnapshot, raw.ContentSnapshot) {
		return nil, fmt.Errorf("%w: directory returned a different card content", domain.ErrSignature)
	}

	verifier := p.Verifier
	if verifier == nil {
		verifier = &Verifier{Crypto: p.Crypto}
	}
	c, err := ParseRawCard(registered, verifier)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// register pide el token y registra; ante un 401 descarta el token cacheado y reintenta una vez.
func (p *Publisher) register(ctx context.Context, identity string, raw RawCard) (RawCard, error) {
	for attempt := 0; ; attempt++ {
		tok, err := p.Tokens.GetToken(ctx, identity)
		if err != nil {
			return RawCard{}, err
		}
		out, err := p.Directory.RegisterCard(ctx, raw, tok)
		if err == nil {
			return out, nil
		}
		f, canForget := p.Tokens.(tokenForgetter)
		if attempt > 0 || !canForget || !errors.Is(err, domain.ErrUnauthorized) {
			return RawCard{}, err
		}
		f.Forget(identity)
	}
}
