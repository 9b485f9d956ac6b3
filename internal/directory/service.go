// Package directory es el servicio de cards: registra, busca, marca outdated y revoca.
// El transporte HTTP vive en internal/http; Client es su contraparte del lado SDK.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
	"github.com/dropDatabas3/hellocards/internal/store/core"
)

const (
	DefaultSearchLimit   = 50
	DefaultOutdatedLimit = 1000
)

type Service struct {
	Repo   core.CardRepository
	Crypto crypto.Provider
	// ServiceKey firma las cards aceptadas (signer "virgil"). Vacío => sin firma de servicio.
	ServiceKey crypto.PrivateKey
	// SingleActive rechaza una segunda card activa para la misma identity.
	SingleActive  bool
	SearchLimit   int
	OutdatedLimit int

	Now   func() time.Time
	NewID func() string
}

func NewService(repo core.CardRepository, p crypto.Provider, serviceKey crypto.PrivateKey, singleActive bool) *Service {
	return &Service{
		Repo:          repo,
		Crypto:        p,
		ServiceKey:    serviceKey,
		SingleActive:  singleActive,
		SearchLimit:   DefaultSearchLimit,
		OutdatedLimit: DefaultOutdatedLimit,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// ServicePublicKey devuelve la clave con la que los clientes verifican la firma del servicio.
func (s *Service) ServicePublicKey() crypto.PublicKey {
	if !s.ServiceKey.Valid() {
		return nil
	}
	return s.ServiceKey.Public()
}

// Register valida y persiste una card firmada por su dueño.
func (s *Service) Register(ctx context.Context, tokenIdentity string, raw card.RawCard) (card.RawCard, error) {
	log := logger.From(ctx).With(logger.Op("directory.register"), logger.Identity(tokenIdentity))

	self, ok := raw.SignatureBy(card.SignerSelf)
	if !ok {
		return card.RawCard{}, fmt.Errorf("%w: missing self signature", domain.ErrSignature)
	}
	// solo se acepta la auto-firma; la del servicio la agrega el directorio
	incoming := card.RawCard{
		ContentSnapshot: raw.ContentSnapshot,
		Signatures:      []card.RawSignature{{Signer: card.SignerSelf, Signature: self}},
	}
	c, err := card.ParseRawCard(incoming, &card.Verifier{Crypto: s.Crypto})
	if err != nil {
		return card.RawCard{}, err
	}
	if c.Identity != tokenIdentity {
		return card.RawCard{}, fmt.Errorf("%w: token identity does not match card identity", domain.ErrForbidden)
	}

	if c.PreviousCardID != "" {
		prev, err := s.Repo.GetCard(ctx, c.PreviousCardID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			return card.RawCard{}, fmt.Errorf("%w: previous card %q", domain.ErrNotFound, c.PreviousCardID)
		case err != nil:
			return card.RawCard{}, err
		case prev.Identity != c.Identity:
			return card.RawCard{}, fmt.Errorf("%w: previous card belongs to another identity", domain.ErrForbidden)
		case !prev.Active():
			return card.RawCard{}, fmt.Errorf("%w: previous card %q is already outdated", domain.ErrDuplicateIdentity, c.PreviousCardID)
		}
	}

	rec := &core.CardRecord{
		ID:              s.newID(),
		Identity:        c.Identity,
		ContentSnapshot: c.Snapshot(),
		Signatures:      []core.CardSignature{{Signer: card.SignerSelf, Signature: self}},
		CreatedAt:       s.now().UTC(),
		PreviousCardID:  c.PreviousCardID,
	}
	if s.ServiceKey.Valid() {
		sig, err := s.Crypto.Sign(rec.ContentSnapshot, s.ServiceKey)
		if err != nil {
			return card.RawCard{}, fmt.Errorf("service sign: %w", err)
		}
		rec.Signatures = append(rec.Signatures, core.CardSignature{Signer: card.SignerService, Signature: sig})
	}

	if err := s.Repo.CreateCard(ctx, rec, s.SingleActive); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return card.RawCard{}, fmt.Errorf("%w: identity %q already has an active card", domain.ErrDuplicateIdentity, c.Identity)
		}
		log.Error("card_persist_failed", logger.Err(err))
		return card.RawCard{}, err
	}
	log.Info("card_registered", logger.CardID(rec.ID), logger.KeyID(c.PublicKey.ID()))
	return toRaw(*rec), nil
}

// Get devuelve la card y si está outdated (reemplazada o revocada).
func (s *Service) Get(ctx context.Context, id string) (card.RawCard, bool, error) {
	if strings.TrimSpace(id) == "" {
		return card.RawCard{}, false, fmt.Errorf("%w: empty card id", domain.ErrInvalidArgument)
	}
	rec, err := s.Repo.GetCard(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return card.RawCard{}, false, fmt.Errorf("%w: card %q", domain.ErrNotFound, id)
	}
	if err != nil {
		return card.RawCard{}, false, err
	}
	return toRaw(*rec), !rec.Active(), nil
}

// Search devuelve las cards activas de las identities dadas.
func (s *Service) Search(ctx context.Context, identities []string) ([]card.RawCard, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: no identities", domain.ErrInvalidArgument)
	}
	if limit := s.searchLimit(); len(identities) > limit {
		return nil, fmt.Errorf("%w: at most %d identities per search", domain.ErrInvalidArgument, limit)
	}
	for _, id := range identities {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: empty identity", domain.ErrInvalidArgument)
		}
	}
	recs, err := s.Repo.ListActiveCards(ctx, identities)
	if err != nil {
		return nil, err
	}
	out := make([]card.RawCard, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRaw(r))
	}
	return out, nil
}

// Outdated devuelve el subconjunto de ids que ya no están activos.
func (s *Service) Outdated(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	if limit := s.outdatedLimit(); len(ids) > limit {
		return nil, fmt.Errorf("%w: at most %d card ids per request", domain.ErrInvalidArgument, limit)
	}
	return s.Repo.OutdatedAmong(ctx, ids)
}

// Revoke revoca una card propia.
func (s *Service) Revoke(ctx context.Context, tokenIdentity, id string) error {
	rec, err := s.Repo.GetCard(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: card %q", domain.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if rec.Identity != tokenIdentity {
		return fmt.Errorf("%w: card belongs to another identity", domain.ErrForbidden)
	}
	if err := s.Repo.RevokeCard(ctx, id, s.now()); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: card %q already revoked", domain.ErrNotFound, id)
		}
		return err
	}
	logger.From(ctx).Info("card_revoked", logger.Identity(tokenIdentity), logger.CardID(id))
	return nil
}

func (s *Service) searchLimit() int {
	if s.SearchLimit > 0 {
		return s.SearchLimit
	}
	return DefaultSearchLimit
}

func (s *Service) outdatedLimit() int {
	if s.OutdatedLimit > 0 {
		return s.OutdatedLimit
	}
	return DefaultOutdatedLimit
}

func toRaw(rec core.CardRecord) card.RawCard {
	sigs := make([]card.RawSignature, len(rec.Signatures))
	for i, s := range rec.Signatures {
		sigs[i] = card.RawSignature{Signer: s.Signer, Signature: append([]byte(nil), s.Signature...)}
	}
	return card.RawCard{
		ID:              rec.ID,
		ContentSnapshot: append([]byte(nil), rec.ContentSnapshot...),
		Signatures:      sigs,
	}
}
