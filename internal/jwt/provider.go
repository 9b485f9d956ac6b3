package jwt

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenProvider entrega el access token con el que se autentica un request.
type TokenProvider interface {
	GetToken(ctx context.Context, identity string) (AccessToken, error)
}

// TokenProviderFunc adapta una función a TokenProvider.
type TokenProviderFunc func(ctx context.Context, identity string) (AccessToken, error)

func (f TokenProviderFunc) GetToken(ctx context.Context, identity string) (AccessToken, error) {
	return f(ctx, identity)
}

// GeneratorProvider emite un token nuevo en cada llamada.
type GeneratorProvider struct {
	Issuer *Issuer
	TTL    time.Duration
}

func NewGeneratorProvider(iss *Issuer, ttl time.Duration) *GeneratorProvider {
	return &GeneratorProvider{Issuer: iss, TTL: ttl}
}

func (g *GeneratorProvider) GetToken(ctx context.Context, identity string) (AccessToken, error) {
	return g.Issuer.IssueToken(ctx, identity, g.TTL)
}

// CachingProvider reutiliza el token de cada identity hasta que le quede menos
// del 10% de vida. Las emisiones concurrentes para una misma identity se colapsan.
type CachingProvider struct {
	Source TokenProvider
	// Now permite fijar el reloj en tests; nil => time.Now.
	Now func() time.Time

	mu     sync.Mutex
	tokens map[string]AccessToken
	group  singleflight.Group
}

func NewCachingProvider(src TokenProvider) *CachingProvider {
	return &CachingProvider{Source: src, tokens: make(map[string]AccessToken)}
}

func (c *CachingProvider) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CachingProvider) usable(t AccessToken) bool {
	remaining := t.ExpiresAt().Sub(c.now())
	return remaining > t.TTL/10
}

func (c *CachingProvider) GetToken(ctx context.Context, identity string) (AccessToken, error) {
	c.mu.Lock()
	if c.tokens == nil {
		c.tokens = make(map[string]AccessToken)
	}
	if t, ok := c.tokens[identity]; ok && c.usable(t) {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(identity, func() (any, error) {
		t, err := c.Source.GetToken(ctx, identity)
		if err != nil {
			return AccessToken{}, err
		}
		c.mu.Lock()
		c.tokens[identity] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return AccessToken{}, err
	}
	return v.(AccessToken), nil
}

// Forget descarta el token cacheado de identity (ej: tras un 401).
func (c *CachingProvider) Forget(identity string) {
	c.mu.Lock()
	delete(c.tokens, identity)
	c.mu.Unlock()
}
