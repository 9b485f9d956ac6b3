// Package router arma el árbol de rutas chi del directorio de cards.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellocards/internal/http/controllers"
	httperrors "github.com/dropDatabas3/hellocards/internal/http/errors"
	mw "github.com/dropDatabas3/hellocards/internal/http/middlewares"
	"github.com/dropDatabas3/hellocards/internal/rate"
)

// Deps contiene las dependencias del router. Los campos opcionales en nil
// desactivan sus rutas.
type Deps struct {
	Cards  *controllers.CardsController
	Health *controllers.HealthController
	// JWKS y Token son opcionales (el servicio también emite tokens).
	JWKS  *controllers.JWKSController
	Token *controllers.TokenController

	Auth        mw.AuthConfig
	RateLimiter rate.Limiter
	Metrics     *mw.HTTPMetrics
	// MetricsHandler se monta en /metrics (promhttp).
	MetricsHandler http.Handler
}

// New devuelve el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// health y métricas: sin logging (muy frecuentes)
	r.Group(func(r chi.Router) {
		r.Use(mw.WithRecover(), mw.WithRequestID())
		if d.Health != nil {
			r.Get("/healthz", d.Health.Healthz)
		}
		if d.MetricsHandler != nil {
			r.Handle("/metrics", d.MetricsHandler)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.WithRequestID(), mw.WithLogging(), mw.WithRecover(), mw.WithSecurityHeaders())
		if d.Metrics != nil {
			r.Use(d.Metrics.Middleware())
		}

		if d.JWKS != nil {
			r.With(mw.WithCacheControl("public, max-age=300")).Get("/.well-known/jwks.json", d.JWKS.Get)
		}
		if d.Token != nil {
			r.With(mw.WithNoStore()).Post("/token", d.Token.Issue)
		}

		if d.Cards != nil {
			r.Route("/card/v5", func(r chi.Router) {
				authed := r.With(mw.RequireToken(d.Auth))
				authed.With(mw.WithRateLimit(d.RateLimiter, mw.IdentityRateKey)).Post("/", d.Cards.Publish)
				authed.Delete("/{id}", d.Cards.Revoke)

				r.Get("/{id}", d.Cards.Get)
				r.Post("/actions/search", d.Cards.Search)
				r.Post("/actions/outdated", d.Cards.Outdated)
			})
		}
	})
	return r
}
