package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocards/internal/store/core"
)

var _ core.CardRepository = (*Store)(nil)

// CreateCard inserta card + firmas en una tx. El lock advisory por identity
// serializa publicaciones concurrentes para la política single_active_card.
func (s *Store) CreateCard(ctx context.Context, rec *core.CardRecord, singleActive bool) error {
	if rec == nil || rec.ID == "" || rec.Identity == "" {
		return core.ErrInvalid
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.Identity); err != nil {
			return err
		}

		if rec.PreviousCardID != "" {
			const q = `
UPDATE cards SET outdated = true
WHERE id = $1 AND identity = $2 AND NOT outdated AND revoked_at IS NULL`
			tag, err := tx.Exec(ctx, q, rec.PreviousCardID, rec.Identity)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return core.ErrConflict
			}
		} else if singleActive {
			const q = `SELECT EXISTS (SELECT 1 FROM cards WHERE identity = $1 AND NOT outdated AND revoked_at IS NULL)`
			var exists bool
			if err := tx.QueryRow(ctx, q, rec.Identity).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return core.ErrConflict
			}
		}

		const qi = `
INSERT INTO cards (id, identity, content_snapshot, created_at, previous_card_id)
VALUES ($1, $2, $3, $4, NULLIF($5, ''))
ON CONFLICT (id) DO NOTHING`
		tag, err := tx.Exec(ctx, qi, rec.ID, rec.Identity, rec.ContentSnapshot, rec.CreatedAt.UTC(), rec.PreviousCardID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return core.ErrConflict
		}

		batch := &pgx.Batch{}
		for i, sig := range rec.Signatures {
			batch.Queue(`INSERT INTO card_signatures (card_id, position, signer, signature) VALUES ($1, $2, $3, $4)`,
				rec.ID, i, sig.Signer, sig.Signature)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) GetCard(ctx context.Context, id string) (*core.CardRecord, error) {
	const q = `
SELECT id, identity, content_snapshot, created_at, COALESCE(previous_card_id, ''), outdated, revoked_at
FROM cards WHERE id = $1`
	var rec core.CardRecord
	err := s.pool.QueryRow(ctx, q, id).Scan(&rec.ID, &rec.Identity, &rec.ContentSnapshot, &rec.CreatedAt,
		&rec.PreviousCardID, &rec.Outdated, &rec.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	sigs, err := s.loadSignatures(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	rec.Signatures = sigs[id]
	return &rec, nil
}

func (s *Store) ListActiveCards(ctx context.Context, identities []string) ([]core.CardRecord, error) {
	if len(identities) == 0 {
		return nil, nil
	}
	const q = `
SELECT id, identity, content_snapshot, created_at, COALESCE(previous_card_id, ''), outdated, revoked_at
FROM cards
WHERE identity = ANY($1) AND NOT outdated AND revoked_at IS NULL
ORDER BY identity, created_at`
	rows, err := s.pool.Query(ctx, q, identities)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CardRecord
	var ids []string
	for rows.Next() {
		var rec core.CardRecord
		if err := rows.Scan(&rec.ID, &rec.Identity, &rec.ContentSnapshot, &rec.CreatedAt,
			&rec.PreviousCardID, &rec.Outdated, &rec.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	sigs, err := s.loadSignatures(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Signatures = sigs[out[i].ID]
	}
	return out, nil
}

func (s *Store) loadSignatures(ctx context.Context, ids []string) (map[string][]core.CardSignature, error) {
	const q = `
SELECT card_id, signer, signature FROM card_signatures
WHERE card_id = ANY($1)
ORDER BY card_id, position`
	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]core.CardSignature, len(ids))
	for rows.Next() {
		var cardID string
		var sig core.CardSignature
		if err := rows.Scan(&cardID, &sig.Signer, &sig.Signature); err != nil {
			return nil, err
		}
		out[cardID] = append(out[cardID], sig)
	}
	return out, rows.Err()
}

func (s *Store) OutdatedAmong(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0)
	if len(ids) == 0 {
		return out, nil
	}
	const q = `SELECT id FROM cards WHERE id = ANY($1) AND (outdated OR revoked_at IS NOT NULL) ORDER BY id`
	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	got, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return append(out, got...), nil
}

func (s *Store) RevokeCard(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE cards SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	tag, err := s.pool.Exec(ctx, q, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
