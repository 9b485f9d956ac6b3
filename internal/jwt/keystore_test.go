package jwt_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	jwtx "github.com/dropDatabas3/hellocards/internal/jwt"
	"github.com/dropDatabas3/hellocards/internal/store/core"
)

func fastProvider() *crypto.Ed25519Provider {
	p := crypto.NewEd25519Provider()
	p.KDF = crypto.KDFParams{Memory: 64, Time: 1, Parallelism: 1, KeyLen: 32}
	return p
}

func TestFileSigningKeyStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := jwtx.NewFileSigningKeyStore(dir, "master-pass", fastProvider())
	require.NoError(t, err)

	ks := jwtx.NewPersistentKeystore(fs, fastProvider())
	require.NoError(t, ks.EnsureBootstrap(ctx))
	// idempotente
	require.NoError(t, ks.EnsureBootstrap(ctx))

	kid, priv, err := ks.Active(ctx)
	require.NoError(t, err)
	require.True(t, priv.Valid())

	// otro proceso con la misma master password ve la misma clave
	fs2, err := jwtx.NewFileSigningKeyStore(dir, "master-pass", fastProvider())
	require.NoError(t, err)
	rec, err := fs2.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, kid, rec.KID)
	assert.Equal(t, []byte(priv), rec.PrivateKey)

	// password incorrecta no descifra
	bad, err := jwtx.NewFileSigningKeyStore(dir, "wrong", fastProvider())
	require.NoError(t, err)
	_, err = bad.GetActiveSigningKey(ctx)
	assert.ErrorIs(t, err, crypto.ErrDecrypt)

	newKID, prevKID, err := ks.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, kid, prevKID)

	pubs, err := fs.ListPublicSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.Equal(t, newKID, pubs[0].KID)
	assert.Equal(t, core.KeyRetiring, pubs[1].Status)
	assert.Nil(t, pubs[0].PrivateKey)

	n, err := fs.RetireOldKeys(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := fs.ListAllSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, core.KeyRetired, all[1].Status)
}

func TestFileSigningKeyStore_RequiresPassword(t *testing.T) {
	_, err := jwtx.NewFileSigningKeyStore(t.TempDir(), "", nil)
	assert.ErrorIs(t, err, crypto.ErrEmptyPassword)
}

func TestKeystore_JWKS(t *testing.T) {
	ctx := context.Background()
	ks := jwtx.NewPersistentKeystore(jwtx.NewMemorySigningKeyStore(), nil)
	require.NoError(t, ks.EnsureBootstrap(ctx))

	kid, pub, err := ks.ActivePublic(ctx)
	require.NoError(t, err)

	doc, err := ks.JWKSJSON(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"kty":"OKP"`)

	keys, err := jwtx.ParseJWKS(doc)
	require.NoError(t, err)
	got, err := keys.PublicKeyByKID(ctx, kid)
	require.NoError(t, err)
	assert.True(t, got.Equal(pub))

	_, err = jwtx.ParseJWKS([]byte(`{"keys":[{"kty":"OKP","crv":"Ed25519","kid":"x","x":"AAAA"}]}`))
	assert.ErrorIs(t, err, crypto.ErrInvalidPublicKey)
}

func TestRemoteJWKS(t *testing.T) {
	ctx := context.Background()
	ks := jwtx.NewPersistentKeystore(jwtx.NewMemorySigningKeyStore(), nil)
	require.NoError(t, ks.EnsureBootstrap(ctx))

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		doc, err := ks.JWKSJSON(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	remote := jwtx.NewRemoteJWKS(srv.URL, time.Minute)
	remote.MinRefresh = time.Hour

	iss := jwtx.NewIssuer("app", ks)
	tok, err := iss.IssueToken(ctx, "alice", time.Minute)
	require.NoError(t, err)

	got, err := jwtx.ParseToken(ctx, tok.Raw, remote, tok.IssuedAt)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Identity)

	_, err = jwtx.ParseToken(ctx, tok.Raw, remote, tok.IssuedAt)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	// kid desconocido dentro de MinRefresh: no vuelve a pedir el documento
	_, err = remote.PublicKeyByKID(ctx, "nope")
	assert.ErrorIs(t, err, jwtx.ErrKIDNotFound)
	assert.EqualValues(t, 1, hits.Load())
}
