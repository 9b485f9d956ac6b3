package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocards/internal/store/core"
)

var _ core.SigningKeyRepository = (*Store)(nil)

const signingKeyCols = `kid, alg, public_key, private_key, status, not_before, created_at, rotated_at`

func scanSigningKey(row pgx.Row) (*core.SigningKey, error) {
	var k core.SigningKey
	if err := row.Scan(&k.KID, &k.Alg, &k.PublicKey, &k.PrivateKey, &k.Status, &k.NotBefore, &k.CreatedAt, &k.RotatedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// GetActiveSigningKey: clave activa más reciente y válida (now >= not_before)
func (s *Store) GetActiveSigningKey(ctx context.Context) (*core.SigningKey, error) {
	return getActive(ctx, s.pool)
}

func getActive(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}) (*core.SigningKey, error) {
	const sql = `
SELECT ` + signingKeyCols + `
FROM signing_keys
WHERE status = 'active' AND now() >= not_before
ORDER BY not_before DESC
LIMIT 1`
	k, err := scanSigningKey(q.QueryRow(ctx, sql))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	return k, err
}

// ListPublicSigningKeys: claves publicables (active + retiring), sin privada.
func (s *Store) ListPublicSigningKeys(ctx context.Context) ([]core.SigningKey, error) {
	return s.listKeys(ctx, `
SELECT kid, alg, public_key, NULL::bytea, status, not_before, created_at, rotated_at
FROM signing_keys
WHERE status IN ('active','retiring')
ORDER BY status ASC, not_before DESC`)
}

// ListAllSigningKeys: todas las claves (active, retiring, retired), sin privada.
func (s *Store) ListAllSigningKeys(ctx context.Context) ([]core.SigningKey, error) {
	return s.listKeys(ctx, `
SELECT kid, alg, public_key, NULL::bytea, status, not_before, created_at, rotated_at
FROM signing_keys
ORDER BY status ASC, not_before DESC`)
}

func (s *Store) listKeys(ctx context.Context, q string) ([]core.SigningKey, error) {
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (s *Store) InsertSigningKey(ctx context.Context, k *core.SigningKey) error {
	const q = `
INSERT INTO signing_keys (kid, alg, public_key, private_key, status, not_before, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), now())`
	var nbf *time.Time
	if !k.NotBefore.IsZero() {
		nbf = &k.NotBefore
	}
	_, err := s.pool.Exec(ctx, q, k.KID, k.Alg, k.PublicKey, k.PrivateKey, string(k.Status), nbf)
	return err
}

// RotateSigningKey crea la nueva ACTIVE y pasa la anterior a RETIRING en una tx.
func (s *Store) RotateSigningKey(ctx context.Context, newKey core.SigningKey) (*core.SigningKey, error) {
	var prev *core.SigningKey
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		k, err := getActive(ctx, tx)
		switch {
		case err == nil:
			prev = k
		case !errors.Is(err, core.ErrNotFound):
			return err
		}

		// la anterior pasa a retiring antes del insert (índice único de active)
		if prev != nil {
			const q = `UPDATE signing_keys SET status='retiring', rotated_at=now() WHERE kid=$1 AND status='active'`
			if _, err := tx.Exec(ctx, q, prev.KID); err != nil {
				return err
			}
		}

		var nbf *time.Time
		if !newKey.NotBefore.IsZero() {
			nbf = &newKey.NotBefore
		}
		const q = `
INSERT INTO signing_keys (kid, alg, public_key, private_key, status, not_before, created_at)
VALUES ($1,$2,$3,$4,'active',COALESCE($5, now()), now())`
		_, err = tx.Exec(ctx, q, newKey.KID, newKey.Alg, newKey.PublicKey, newKey.PrivateKey, nbf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

// RetireOldKeys: marca claves 'retiring' anteriores al cutoff como 'retired'
func (s *Store) RetireOldKeys(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `
UPDATE signing_keys
SET status = 'retired'
WHERE status = 'retiring'
  AND rotated_at IS NOT NULL
  AND rotated_at < $1`
	tag, err := s.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
