package middlewares

import "net/http"

// WithNoStore agrega Cache-Control: no-store (tokens, publicación).
func WithNoStore() Middleware {
	return WithCacheControl("no-store")
}

// WithCacheControl agrega Cache-Control con la directiva dada (p.ej. JWKS).
func WithCacheControl(directive string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", directive)
			next.ServeHTTP(w, r)
		})
	}
}
