package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/config"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/directory"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), cfg, Options{Registry: reg, Gatherer: reg, Version: "test"})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, directory.ErrorBody) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var eb directory.ErrorBody
	if rec.Code >= 400 {
		_ = json.Unmarshal(rec.Body.Bytes(), &eb)
	}
	return rec, eb
}

func TestRouter_ErrorsAreJSON(t *testing.T) {
	a := newTestApp(t, nil)

	rec, eb := do(t, a.Handler, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", eb.Code)

	rec, eb = do(t, a.Handler, http.MethodPut, "/card/v5/abc", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", eb.Code)

	rec, eb = do(t, a.Handler, http.MethodPost, "/card/v5", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_MISSING", eb.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestRouter_TokenEndpointOnlyInDev(t *testing.T) {
	a := newTestApp(t, nil)
	rec, _ := do(t, a.Handler, http.MethodPost, "/token", "", map[string]any{"identity": "alice"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	dev := newTestApp(t, func(c *config.Config) { c.Issuer.DevEndpoint = true })
	rec, _ = do(t, dev.Handler, http.MethodPost, "/token", "", map[string]any{"identity": "alice", "ttl_seconds": 30})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_PublishAndRateLimit(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.Publish = 1
		v := false
		c.Directory.SingleActiveCard = &v
	})
	ctx := context.Background()
	p := crypto.NewEd25519Provider()

	tok, err := a.Issuer.IssueToken(ctx, "alice", time.Minute)
	require.NoError(t, err)

	publish := func() *httptest.ResponseRecorder {
		kp, err := p.GenerateKeyPair()
		require.NoError(t, err)
		raw, err := card.NewRawCard(p, "alice", kp, "", time.Now())
		require.NoError(t, err)
		rec, _ := do(t, a.Handler, http.MethodPost, "/card/v5", tok.Raw, raw)
		return rec
	}

	rec := publish()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created directory.CardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	_, ok := created.SignatureBy(card.SignerService)
	assert.True(t, ok)

	rec = publish()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRouter_IdentityMismatchIsForbidden(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	p := crypto.NewEd25519Provider()

	tok, err := a.Issuer.IssueToken(ctx, "mallory", time.Minute)
	require.NoError(t, err)
	kp, err := p.GenerateKeyPair()
	require.NoError(t, err)
	raw, err := card.NewRawCard(p, "alice", kp, "", time.Now())
	require.NoError(t, err)

	rec, eb := do(t, a.Handler, http.MethodPost, "/card/v5", tok.Raw, raw)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", eb.Code)
}

func TestNew_InvalidStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Issuer.Keystore = "fs"
	cfg.Issuer.MasterPasswordEnv = "CARDS_TEST_UNSET_MASTER_PASSWORD"
	t.Setenv("CARDS_TEST_UNSET_MASTER_PASSWORD", "")
	reg := prometheus.NewRegistry()
	_, err := New(context.Background(), cfg, Options{Registry: reg, Gatherer: reg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CARDS_TEST_UNSET_MASTER_PASSWORD")
}
