package e3test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocards/internal/app"
	"github.com/dropDatabas3/hellocards/internal/config"
	"github.com/dropDatabas3/hellocards/internal/crypto"
)

// Local es un directorio en proceso sobre httptest.
type Local struct {
	Server *httptest.Server
	App    *app.App
	Consts Consts
	Utils  *Utils
}

// StartLocalDirectory levanta el directorio con storage y cache en memoria.
// La API key de Consts es la clave activa del issuer del propio directorio.
// mutate, si no es nil, ajusta la config antes de construir la App.
func StartLocalDirectory(t testing.TB, mutate func(*config.Config)) *Local {
	t.Helper()
	ctx := context.Background()
	p := crypto.NewEd25519Provider()

	cfg := config.Default()
	cfg.App.Env = "test"
	cfg.Issuer.AppID = "e3test"
	cfg.Issuer.DevEndpoint = true
	if mutate != nil {
		mutate(cfg)
	}

	svcKP, err := p.GenerateKeyPair()
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	a, err := app.New(ctx, cfg, app.Options{Crypto: p, Registry: reg, Gatherer: reg, ServiceKey: svcKP.Private})
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})

	kid, priv, err := a.Keystore.Active(ctx)
	require.NoError(t, err)
	consts := NewLocalConsts(cfg.Issuer.AppID, kid, priv, srv.URL, svcKP.Public, p)

	u, err := NewUtils(consts, p, srv.Client())
	require.NoError(t, err)
	return &Local{Server: srv, App: a, Consts: consts, Utils: u}
}
