package card_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/jwt"
)

// fakeDirectory aplica la política single_active_card y agrega la firma del servicio.
type fakeDirectory struct {
	mu         sync.Mutex
	provider   crypto.Provider
	serviceKey crypto.KeyPair
	byIdentity map[string]string
	cards      map[string]card.RawCard
	failWith   error
	unauthOnce bool
	tokens     []jwt.AccessToken
}

func newFakeDirectory(t *testing.T) *fakeDirectory {
	p := crypto.NewEd25519Provider()
	kp, err := p.GenerateKeyPair()
	require.NoError(t, err)
	return &fakeDirectory{
		provider:   p,
		serviceKey: kp,
		byIdentity: map[string]string{},
		cards:      map[string]card.RawCard{},
	}
}

func (d *fakeDirectory) RegisterCard(ctx context.Context, raw card.RawCard, tok jwt.AccessToken) (card.RawCard, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, tok)
	if d.unauthOnce {
		d.unauthOnce = false
		return card.RawCard{}, domain.ErrUnauthorized
	}
	if d.failWith != nil {
		return card.RawCard{}, d.failWith
	}
	content, err := card.ParseContent(raw.ContentSnapshot)
	if err != nil {
		return card.RawCard{}, err
	}
	if prev, ok := d.byIdentity[content.Identity]; ok && content.PreviousCardID != prev {
		return card.RawCard{}, domain.ErrDuplicateIdentity
	}
	sig, err := d.provider.Sign(raw.ContentSnapshot, d.serviceKey.Private)
	if err != nil {
		return card.RawCard{}, err
	}
	raw.ID = uuid.NewString()
	raw.Signatures = append(raw.Signatures, card.RawSignature{Signer: card.SignerService, Signature: sig})
	d.byIdentity[content.Identity] = raw.ID
	d.cards[raw.ID] = raw
	return raw, nil
}

type countingTokens struct {
	mu     sync.Mutex
	calls  int
	forgot []string
}

func (c *countingTokens) GetToken(ctx context.Context, identity string) (jwt.AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return jwt.AccessToken{Identity: identity, Raw: "tok-" + identity}, nil
}

func (c *countingTokens) Forget(identity string) {
	c.mu.Lock()
	c.forgot = append(c.forgot, identity)
	c.mu.Unlock()
}

func newPublisher(t *testing.T, dir *fakeDirectory, tokens jwt.TokenProvider) *card.Publisher {
	p := crypto.NewEd25519Provider()
	return card.NewPublisher(p, tokens, dir, card.NewVerifier(p, dir.serviceKey.Public))
}

func genKeyPair(t *testing.T) crypto.KeyPair {
	kp, err := crypto.NewEd25519Provider().GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestPublish_RoundTrip(t *testing.T) {
	dir := newFakeDirectory(t)
	pub := newPublisher(t, dir, &countingTokens{})
	kp := genKeyPair(t)

	c, err := pub.Publish(context.Background(), "alice", kp)
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "alice", c.Identity)
	assert.True(t, c.PublicKey.Equal(kp.Public))
	assert.Equal(t, card.Version, c.Version)
	assert.False(t, c.IsOutdated)

	// lookup del card id devuelve la misma clave pública
	stored, ok := dir.cards[c.ID]
	require.True(t, ok)
	again, err := card.ParseRawCard(stored, card.NewVerifier(nil, dir.serviceKey.Public))
	require.NoError(t, err)
	assert.True(t, again.PublicKey.Equal(kp.Public))
	assert.Equal(t, c.Signature, again.Signature)

	require.Len(t, dir.tokens, 1)
	assert.Equal(t, "alice", dir.tokens[0].Identity)
}

func TestPublish_DistinctIDs(t *testing.T) {
	dir := newFakeDirectory(t)
	pub := newPublisher(t, dir, &countingTokens{})
	kp := genKeyPair(t)

	a, err := pub.Publish(context.Background(), "u1", kp)
	require.NoError(t, err)
	b, err := pub.Publish(context.Background(), "u2", kp)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestPublish_DuplicateIdentity(t *testing.T) {
	dir := newFakeDirectory(t)
	pub := newPublisher(t, dir, &countingTokens{})
	kp := genKeyPair(t)

	_, err := pub.Publish(context.Background(), "bob", kp)
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "bob", kp)
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)
}

func TestPublishReplacing(t *testing.T) {
	dir := newFakeDirectory(t)
	pub := newPublisher(t, dir, &countingTokens{})
	ctx := context.Background()

	first, err := pub.Publish(ctx, "carol", genKeyPair(t))
	require.NoError(t, err)

	next, err := pub.PublishReplacing(ctx, "carol", genKeyPair(t), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, next.PreviousCardID)

	_, err = pub.PublishReplacing(ctx, "carol", genKeyPair(t), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestPublish_InvalidArguments(t *testing.T) {
	dir := newFakeDirectory(t)
	pub := newPublisher(t, dir, &countingTokens{})
	kp := genKeyPair(t)
	ctx := context.Background()

	_, err := pub.Publish(ctx, "", kp)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = pub.Publish(ctx, "alice", crypto.KeyPair{Public: kp.Public})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, dir.tokens, "no request is sent for invalid input")
}

func TestPublish_MismatchedKeyPairIsSignatureError(t *testing.T) {
	dir := newFakeDirectory(t)
	pub := newPublisher(t, dir, &countingTokens{})
	a, b := genKeyPair(t), genKeyPair(t)

	_, err := pub.Publish(context.Background(), "alice", crypto.KeyPair{Private: a.Private, Public: b.Public})
	assert.ErrorIs(t, err, domain.ErrSignature)
	assert.Empty(t, dir.tokens)
}

func TestPublish_DirectoryErrorsPassThrough(t *testing.T) {
	for _, want := range []error{domain.ErrNetwork, domain.ErrSignature, domain.ErrIssuerUnavailable} {
		dir := newFakeDirectory(t)
		dir.failWith = want
		pub := newPublisher(t, dir, &countingTokens{})

		_, err := pub.Publish(context.Background(), "alice", genKeyPair(t))
		assert.ErrorIs(t, err, want)
	}
}

func TestPublish_RetriesOnceAfterUnauthorized(t *testing.T) {
	dir := newFakeDirectory(t)
	dir.unauthOnce = true
	tokens := &countingTokens{}
	pub := newPublisher(t, dir, tokens)

	_, err := pub.Publish(context.Background(), "alice", genKeyPair(t))
	require.NoError(t, err)
	assert.Equal(t, 2, tokens.calls)
	assert.Equal(t, []string{"alice"}, tokens.forgot)

	dir.failWith = domain.ErrUnauthorized
	_, err = pub.Publish(context.Background(), "zed", genKeyPair(t))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPublish_TokenErrorPropagates(t *testing.T) {
	dir := newFakeDirectory(t)
	tokens := jwt.TokenProviderFunc(func(context.Context, string) (jwt.AccessToken, error) {
		return jwt.AccessToken{}, domain.ErrIssuerUnavailable
	})
	pub := newPublisher(t, dir, tokens)

	_, err := pub.Publish(context.Background(), "alice", genKeyPair(t))
	assert.True(t, errors.Is(err, domain.ErrIssuerUnavailable))
	assert.True(t, domain.IsTransient(err))
}

type tamperingDirectory struct{ *fakeDirectory }

func (d tamperingDirectory) RegisterCard(ctx context.Context, raw card.RawCard, tok jwt.AccessToken) (card.RawCard, error) {
	out, err := d.fakeDirectory.RegisterCard(ctx, raw, tok)
	if err != nil {
		return out, err
	}
	for i := range out.Signatures {
		if out.Signatures[i].Signer == card.SignerService {
			out.Signatures[i].Signature[0] ^= 1
		}
	}
	return out, nil
}

func TestPublish_RejectsBadServiceSignature(t *testing.T) {
	dir := newFakeDirectory(t)
	p := crypto.NewEd25519Provider()
	pub := card.NewPublisher(p, &countingTokens{}, tamperingDirectory{dir}, card.NewVerifier(p, dir.serviceKey.Public))

	_, err := pub.Publish(context.Background(), "alice", genKeyPair(t))
	assert.ErrorIs(t, err, domain.ErrSignature)
}

func TestPublish_UsesClock(t *testing.T) {
	dir := newFakeDirectory(t)
	pub := newPublisher(t, dir, &countingTokens{})
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	pub.Now = func() time.Time { return at }

	c, err := pub.Publish(context.Background(), "alice", genKeyPair(t))
	require.NoError(t, err)
	assert.Equal(t, at, c.CreatedAt)
}
