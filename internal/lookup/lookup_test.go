package lookup_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocards/internal/cache"
	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/directory"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/lookup"
	"github.com/dropDatabas3/hellocards/internal/store/memory"
)

// countingDirectory envuelve el servicio en proceso y cuenta las búsquedas.
type countingDirectory struct {
	svc      *directory.Service
	searches atomic.Int32
	delay    time.Duration
}

func (d *countingDirectory) SearchCards(ctx context.Context, identities []string) ([]card.RawCard, error) {
	d.searches.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.svc.Search(ctx, identities)
}

func (d *countingDirectory) OutdatedCards(ctx context.Context, ids []string) ([]string, error) {
	return d.svc.Outdated(ctx, ids)
}

type fixture struct {
	p   crypto.Provider
	svc *directory.Service
	dir *countingDirectory
	m   *lookup.Manager
}

func newFixture(t *testing.T, singleActive bool) *fixture {
	t.Helper()
	p := crypto.NewEd25519Provider()
	svcKP, err := p.GenerateKeyPair()
	require.NoError(t, err)
	svc := directory.NewService(memory.NewCardStore(), p, svcKP.Private, singleActive)
	dir := &countingDirectory{svc: svc}
	m := lookup.NewManager(dir, cache.NewMemory("", time.Minute), card.NewVerifier(p, svc.ServicePublicKey()), time.Minute)
	return &fixture{p: p, svc: svc, dir: dir, m: m}
}

func (f *fixture) publish(t *testing.T, identity, prev string) (card.RawCard, crypto.KeyPair) {
	t.Helper()
	kp, err := f.p.GenerateKeyPair()
	require.NoError(t, err)
	raw, err := card.NewRawCard(f.p, identity, kp, prev, time.Now())
	require.NoError(t, err)
	out, err := f.svc.Register(context.Background(), identity, raw)
	require.NoError(t, err)
	return out, kp
}

func TestLookupCards_CachesResults(t *testing.T) {
	f := newFixture(t, true)
	_, kpA := f.publish(t, "alice", "")
	_, kpB := f.publish(t, "bob", "")
	ctx := context.Background()

	cards, err := f.m.LookupCards(ctx, []string{"alice", "bob", "alice"}, false)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.True(t, cards["alice"].PublicKey.Equal(kpA.Public))
	assert.True(t, cards["bob"].PublicKey.Equal(kpB.Public))
	assert.Equal(t, int32(1), f.dir.searches.Load())

	_, err = f.m.LookupCards(ctx, []string{"alice", "bob"}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.dir.searches.Load())

	_, err = f.m.LookupCards(ctx, []string{"alice"}, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.dir.searches.Load())
}

func TestLookupCards_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no identities", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.m.LookupCards(ctx, nil, false)
		assert.ErrorIs(t, err, domain.ErrMissingIdentities)
		_, err = f.m.LookupCards(ctx, []string{""}, false)
		assert.ErrorIs(t, err, domain.ErrMissingIdentities)
	})

	t.Run("unknown identity", func(t *testing.T) {
		f := newFixture(t, true)
		f.publish(t, "alice", "")
		_, err := f.m.LookupCards(ctx, []string{"alice", "ghost"}, false)
		assert.ErrorIs(t, err, domain.ErrCardNotFound)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("duplicate cards", func(t *testing.T) {
		f := newFixture(t, false)
		f.publish(t, "alice", "")
		f.publish(t, "alice", "")
		_, err := f.m.LookupCards(ctx, []string{"alice"}, false)
		assert.ErrorIs(t, err, domain.ErrDuplicateCards)
	})
}

func TestLookupCards_CoalescesConcurrentMisses(t *testing.T) {
	f := newFixture(t, true)
	f.publish(t, "alice", "")
	f.dir.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.m.LookupCards(context.Background(), []string{"alice"}, true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, f.dir.searches.Load(), int32(8))
}

func TestLookupPublicKeys(t *testing.T) {
	f := newFixture(t, true)
	_, kp := f.publish(t, "alice", "")
	keys, err := f.m.LookupPublicKeys(context.Background(), []string{"alice"}, false)
	require.NoError(t, err)
	assert.True(t, keys["alice"].Equal(kp.Public))
}

func TestUpdateCachedCards(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	first, _ := f.publish(t, "alice", "")
	f.publish(t, "bob", "")

	_, err := f.m.LookupCards(ctx, []string{"alice", "bob"}, false)
	require.NoError(t, err)

	_, kpNext := f.publish(t, "alice", first.ID)

	var changed []string
	f.m.OnChanged = func(identity string, prev, next *card.Card) {
		changed = append(changed, identity)
		assert.Equal(t, first.ID, prev.ID)
		require.NotNil(t, next)
		assert.True(t, next.PublicKey.Equal(kpNext.Public))
	}

	updated, err := f.m.UpdateCachedCards(ctx, []string{"alice", "bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, updated)
	assert.Equal(t, []string{"alice"}, changed)

	searches := f.dir.searches.Load()
	cards, err := f.m.LookupCards(ctx, []string{"alice"}, false)
	require.NoError(t, err)
	assert.True(t, cards["alice"].PublicKey.Equal(kpNext.Public))
	assert.Equal(t, searches, f.dir.searches.Load())
}

func TestUpdateCachedCards_NothingCached(t *testing.T) {
	f := newFixture(t, true)
	updated, err := f.m.UpdateCachedCards(context.Background(), []string{"alice"})
	require.NoError(t, err)
	assert.Empty(t, updated)
}
