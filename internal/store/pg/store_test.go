package pg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/hellocards/migrations/postgres"

	"github.com/dropDatabas3/hellocards/internal/store/core"
)

func TestParseMigrations(t *testing.T) {
	m := NewMigrator(migrations.CardsFS, migrations.CardsDir)
	migs, err := m.ParseMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Equal(t, 1, migs[0].Version)
	assert.Equal(t, "init", migs[0].Name)
	assert.Contains(t, migs[0].SQL, "CREATE TABLE IF NOT EXISTS cards")
}

// openTestStore conecta a CARDS_TEST_PG_DSN; sin DSN los tests de integración se saltean.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CARDS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CARDS_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn, PoolConfig{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.Migrate(ctx, NewMigrator(migrations.CardsFS, migrations.CardsDir))
	require.NoError(t, err)
	return s
}

func TestStore_CardsLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	identity := "pg-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	first := &core.CardRecord{
		ID:              uuid.NewString(),
		Identity:        identity,
		ContentSnapshot: []byte(`{"identity":"x"}`),
		Signatures: []core.CardSignature{
			{Signer: "self", Signature: []byte{1}},
			{Signer: "virgil", Signature: []byte{2}},
		},
		CreatedAt: now,
	}
	require.NoError(t, s.CreateCard(ctx, first, true))

	dup := *first
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, s.CreateCard(ctx, &dup, true), core.ErrConflict)

	got, err := s.GetCard(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, identity, got.Identity)
	require.Len(t, got.Signatures, 2)
	assert.Equal(t, "virgil", got.Signatures[1].Signer)

	next := *first
	next.ID = uuid.NewString()
	next.PreviousCardID = first.ID
	next.CreatedAt = now.Add(time.Second)
	require.NoError(t, s.CreateCard(ctx, &next, true))

	active, err := s.ListActiveCards(ctx, []string{identity})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, next.ID, active[0].ID)

	outdated, err := s.OutdatedAmong(ctx, []string{first.ID, next.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, outdated)

	require.NoError(t, s.RevokeCard(ctx, next.ID, now))
	assert.ErrorIs(t, s.RevokeCard(ctx, next.ID, now), core.ErrNotFound)
}

func TestStore_SigningKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	kid := "test-" + uuid.NewString()
	prev, err := s.RotateSigningKey(ctx, core.SigningKey{
		KID:        kid,
		Alg:        "EdDSA",
		PublicKey:  make([]byte, 32),
		PrivateKey: make([]byte, 64),
	})
	require.NoError(t, err)
	_ = prev

	act, err := s.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, kid, act.KID)
	assert.Len(t, act.PrivateKey, 64)

	pubs, err := s.ListPublicSigningKeys(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, pubs)
	assert.Equal(t, kid, pubs[0].KID)
	assert.Nil(t, pubs[0].PrivateKey)
}
