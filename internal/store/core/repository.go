package core

import (
	"context"
	"time"
)

// CardRepository persiste cards del directorio.
type CardRepository interface {
	// CreateCard inserta la card de forma atómica.
	// Si rec.PreviousCardID != "" marca la anterior como outdated (misma identity,
	// no outdated ni revocada) o devuelve ErrConflict.
	// Si singleActive y no hay PreviousCardID, falla con ErrConflict cuando ya existe
	// una card activa para la identity.
	CreateCard(ctx context.Context, rec *CardRecord, singleActive bool) error

	GetCard(ctx context.Context, id string) (*CardRecord, error)

	// ListActiveCards devuelve las cards activas de las identities dadas, ordenadas
	// por identity y created_at.
	ListActiveCards(ctx context.Context, identities []string) ([]CardRecord, error)

	// OutdatedAmong devuelve el subconjunto de ids que están outdated o revocados.
	OutdatedAmong(ctx context.Context, ids []string) ([]string, error)

	// RevokeCard marca la card como revocada. ErrNotFound si no existe o ya estaba revocada.
	RevokeCard(ctx context.Context, id string, at time.Time) error
}

// SigningKeyRepository persiste las claves del issuer.
type SigningKeyRepository interface {
	GetActiveSigningKey(ctx context.Context) (*SigningKey, error)
	ListPublicSigningKeys(ctx context.Context) ([]SigningKey, error)
	ListAllSigningKeys(ctx context.Context) ([]SigningKey, error)
	InsertSigningKey(ctx context.Context, k *SigningKey) error
	RotateSigningKey(ctx context.Context, newKey SigningKey) (*SigningKey, error)
	RetireOldKeys(ctx context.Context, cutoff time.Time) (int, error)
}
