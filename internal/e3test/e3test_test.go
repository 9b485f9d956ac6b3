package e3test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/config"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/jwt"
	"github.com/dropDatabas3/hellocards/internal/lookup"
)

func TestToken_VerifiesUntilExpiry(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	ctx := context.Background()

	issued := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	l.Utils.Issuer.Now = func() time.Time { return issued }
	tok, err := l.Utils.Token(ctx, "alice", 60*time.Second)
	require.NoError(t, err)

	_, pub, err := l.App.Keystore.ActivePublic(ctx)
	require.NoError(t, err)
	assert.True(t, jwt.VerifyToken(tok.Raw, pub, issued))
	assert.True(t, jwt.VerifyToken(tok.Raw, pub, issued.Add(59*time.Second)))
	assert.False(t, jwt.VerifyToken(tok.Raw, pub, issued.Add(61*time.Second)))
}

func TestPublishCard_ThenGetReturnsSameKey(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	ctx := context.Background()

	c, kp, err := l.Utils.PublishCard(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	raw, outdated, err := l.Utils.Directory.GetCard(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, outdated)

	got, err := card.ParseRawCard(raw, l.Utils.Publisher.Verifier)
	require.NoError(t, err)
	assert.True(t, got.PublicKey.Equal(kp.Public))
	assert.Equal(t, c.Identity, got.Identity)
}

func TestPublishCard_DistinctIDs(t *testing.T) {
	l := StartLocalDirectory(t, func(c *config.Config) {
		v := false
		c.Directory.SingleActiveCard = &v
	})
	ctx := context.Background()

	kp, err := l.Utils.Crypto.GenerateKeyPair()
	require.NoError(t, err)
	first, err := l.Utils.Publisher.Publish(ctx, "carol", kp)
	require.NoError(t, err)
	second, err := l.Utils.Publisher.Publish(ctx, "carol", kp)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestPublishCard_DuplicateIdentity(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	ctx := context.Background()

	kp, err := l.Utils.Crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = l.Utils.Publisher.Publish(ctx, "bob", kp)
	require.NoError(t, err)
	_, err = l.Utils.Publisher.Publish(ctx, "bob", kp)
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)
	assert.False(t, domain.IsTransient(err))
}

func TestPublishReplacing_ThenLookupSeesNewKey(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	ctx := context.Background()

	first, _, err := l.Utils.PublishCard(ctx, "dave")
	require.NoError(t, err)

	m := lookup.NewManager(l.Utils.Directory, l.App.Cache, l.Utils.Publisher.Verifier, time.Minute)
	keys, err := m.LookupPublicKeys(ctx, []string{"dave"}, false)
	require.NoError(t, err)
	assert.True(t, l.Utils.PublicKeysEqual([]crypto.PublicKey{keys["dave"]}, []crypto.PublicKey{first.PublicKey}))

	next, err := l.Utils.Crypto.GenerateKeyPair()
	require.NoError(t, err)
	replaced, err := l.Utils.Publisher.PublishReplacing(ctx, "dave", next, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replaced.PreviousCardID)

	changed, err := m.UpdateCachedCards(ctx, []string{"dave"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dave"}, changed)

	keys, err = m.LookupPublicKeys(ctx, []string{"dave"}, false)
	require.NoError(t, err)
	assert.True(t, keys["dave"].Equal(next.Public))
}

func TestRevoke_RequiresOwner(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	ctx := context.Background()

	c, _, err := l.Utils.PublishCard(ctx, "erin")
	require.NoError(t, err)

	mallory, err := l.Utils.Token(ctx, "mallory", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Utils.Directory.RevokeCard(ctx, c.ID, mallory), domain.ErrForbidden)

	owner, err := l.Utils.Token(ctx, "erin", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Utils.Directory.RevokeCard(ctx, c.ID, owner))

	_, outdated, err := l.Utils.Directory.GetCard(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, outdated)
}

func TestRegister_RejectsTamperedToken(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	ctx := context.Background()

	kp, err := l.Utils.Crypto.GenerateKeyPair()
	require.NoError(t, err)
	raw, err := card.NewRawCard(l.Utils.Crypto, "frank", kp, "", time.Now())
	require.NoError(t, err)

	tok, err := l.Utils.Token(ctx, "frank", time.Minute)
	require.NoError(t, err)
	parts := strings.Split(tok.Raw, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tok.Raw = parts[0] + "." + parts[1] + "." + string(sig)

	_, err = l.Utils.Directory.RegisterCard(ctx, raw, tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSearchAndOutdated_OverHTTP(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	ctx := context.Background()

	a, err := l.Utils.PublishRandomCard(ctx)
	require.NoError(t, err)
	b, err := l.Utils.PublishRandomCard(ctx)
	require.NoError(t, err)

	cards, err := l.Utils.Directory.SearchCards(ctx, []string{a.Identity, b.Identity, "nobody"})
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	ids, err := l.Utils.Directory.OutdatedCards(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, _, err = l.Utils.Directory.GetCard(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOperationalEndpoints(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	c := l.Server.Client()

	for _, path := range []string{"/healthz", "/metrics", "/.well-known/jwks.json"} {
		resp, err := c.Get(l.Server.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		if path != "/metrics" {
			assert.NotEmpty(t, body, path)
		}
	}

	resp, err := c.Get(l.Server.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	keys, err := jwt.ParseJWKS(data)
	require.NoError(t, err)
	_, ok := keys[l.Consts.APIKeyID]
	assert.True(t, ok)
}

func TestDevTokenEndpoint(t *testing.T) {
	l := StartLocalDirectory(t, nil)
	resp, err := l.Server.Client().Post(l.Server.URL+"/token", "application/json", strings.NewReader(`{"identity":"gina","ttl_seconds":30}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestLoadConsts(t *testing.T) {
	p := crypto.NewEd25519Provider()
	kp, err := p.GenerateKeyPair()
	require.NoError(t, err)
	c := NewLocalConsts("app-1", "kid-1", kp.Private, "http://localhost:8080", kp.Public, p)

	path := filepath.Join(t.TempDir(), "consts.yaml")
	body, err := yaml.Marshal(c)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("CARDS_TEST_SERVICE_URL", "")

	got, err := LoadConsts(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	priv, err := got.APIKey(p)
	require.NoError(t, err)
	assert.True(t, priv.Public().Equal(kp.Public))

	_, err = LoadConsts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConsts_PasswordProtectedKey(t *testing.T) {
	p := &crypto.Ed25519Provider{KDF: crypto.KDFParams{Memory: 64, Time: 1, Parallelism: 1, KeyLen: 32}}
	kp, err := p.GenerateKeyPair()
	require.NoError(t, err)
	blob, err := p.ExportPrivateKey(kp.Private, "s3cret")
	require.NoError(t, err)

	t.Setenv("E3TEST_KEY_PASSWORD", "s3cret")
	c := Consts{APIPrivateKey: base64.StdEncoding.EncodeToString(blob), APIKeyPasswordEnv: "E3TEST_KEY_PASSWORD"}
	priv, err := c.APIKey(p)
	require.NoError(t, err)
	assert.True(t, priv.Public().Equal(kp.Public))
}

func TestConsts_Validate(t *testing.T) {
	err := Consts{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_id")
	assert.Contains(t, err.Error(), "service_url")
}
