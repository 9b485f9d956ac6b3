package jwt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
)

// RemoteJWKS resuelve claves contra el JWKS publicado por un issuer remoto.
// Cachea el documento ttl; un kid desconocido fuerza un refresh (como mucho uno
// cada minRefresh).
type RemoteJWKS struct {
	URL        string
	Client     *http.Client
	TTL        time.Duration
	MinRefresh time.Duration

	mu       sync.RWMutex
	keys     StaticResolver
	until    time.Time
	lastLoad time.Time

	group singleflight.Group
}

var _ KeyResolver = (*RemoteJWKS)(nil)

func NewRemoteJWKS(url string, ttl time.Duration) *RemoteJWKS {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RemoteJWKS{
		URL:        url,
		Client:     &http.Client{Timeout: 10 * time.Second},
		TTL:        ttl,
		MinRefresh: 10 * time.Second,
	}
}

func (r *RemoteJWKS) PublicKeyByKID(ctx context.Context, kid string) (crypto.PublicKey, error) {
	r.mu.RLock()
	keys, fresh, canRefresh := r.keys, time.Now().Before(r.until), time.Since(r.lastLoad) >= r.MinRefresh
	r.mu.RUnlock()

	if keys != nil && fresh {
		if pub, err := keys.PublicKeyByKID(ctx, kid); err == nil || !canRefresh {
			return pub, err
		}
	}

	keys, err := r.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return keys.PublicKeyByKID(ctx, kid)
}

func (r *RemoteJWKS) refresh(ctx context.Context) (StaticResolver, error) {
	v, err, _ := r.group.Do("jwks", func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		keys, err := ParseJWKS(body)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		r.mu.Lock()
		r.keys, r.until, r.lastLoad = keys, now.Add(r.TTL), now
		r.mu.Unlock()
		logger.From(ctx).Debug("jwks_refreshed", logger.Count(len(keys)))
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(StaticResolver), nil
}
