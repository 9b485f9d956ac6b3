// Package lookup resuelve identities a cards verificadas, con cache y refresco de outdated.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/hellocards/internal/cache"
	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/metrics"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
)

const (
	searchChunk   = 50
	outdatedChunk = 1000
	cachePrefix   = "card:identity:"
)

// Directory es lo que lookup necesita del directorio.
type Directory interface {
	SearchCards(ctx context.Context, identities []string) ([]card.RawCard, error)
	OutdatedCards(ctx context.Context, ids []string) ([]string, error)
}

// ChangedKeyFunc se invoca cuando el refresco encuentra una card reemplazada.
// next es nil si la identity ya no tiene card activa.
type ChangedKeyFunc func(identity string, prev, next *card.Card)

type Manager struct {
	Directory Directory
	Cache     cache.Client
	Verifier  *card.Verifier
	CacheTTL  time.Duration
	OnChanged ChangedKeyFunc

	group singleflight.Group
}

// NewManager con v == nil verifica solo la auto-firma.
func NewManager(dir Directory, c cache.Client, v *card.Verifier, ttl time.Duration) *Manager {
	if v == nil {
		v = &card.Verifier{}
	}
	return &Manager{Directory: dir, Cache: c, Verifier: v, CacheTTL: ttl}
}

// LookupCards devuelve una card activa por identity.
// Sin identities => ErrMissingIdentities; más de una card => ErrDuplicateCards;
// alguna identity sin card => ErrCardNotFound.
func (m *Manager) LookupCards(ctx context.Context, identities []string, forceReload bool) (map[string]*card.Card, error) {
	ids := uniq(identities)
	if len(ids) == 0 {
		return nil, domain.ErrMissingIdentities
	}

	out := make(map[string]*card.Card, len(ids))
	var missing []string
	for _, id := range ids {
		if !forceReload {
			if c, ok := m.cached(ctx, id); ok {
				out[id] = c
				metrics.CardLookups.WithLabelValues(metrics.SourceCache).Inc()
				continue
			}
		}
		missing = append(missing, id)
	}

	for start := 0; start < len(missing); start += searchChunk {
		end := min(start+searchChunk, len(missing))
		found, err := m.fetch(ctx, missing[start:end])
		if err != nil {
			return nil, err
		}
		for id, c := range found {
			out[id] = c
		}
	}

	var notFound []string
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			notFound = append(notFound, id)
		}
	}
	if len(notFound) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrCardNotFound, strings.Join(notFound, ", "))
	}
	return out, nil
}

// LookupPublicKeys es LookupCards reducido a las claves públicas.
func (m *Manager) LookupPublicKeys(ctx context.Context, identities []string, forceReload bool) (map[string]crypto.PublicKey, error) {
	cards, err := m.LookupCards(ctx, identities, forceReload)
	if err != nil {
		return nil, err
	}
	out := make(map[string]crypto.PublicKey, len(cards))
	for id, c := range cards {
		out[id] = c.PublicKey.Clone()
	}
	return out, nil
}

// fetch busca en el directorio y cachea. Lookups concurrentes del mismo set se coalescen.
func (m *Manager) fetch(ctx context.Context, identities []string) (map[string]*card.Card, error) {
	key := strings.Join(identities, "\x00")
	v, err, _ := m.group.Do(key, func() (any, error) {
		raws, err := m.Directory.SearchCards(ctx, identities)
		if err != nil {
			return nil, err
		}
		found := make(map[string]*card.Card, len(raws))
		for _, raw := range raws {
			c, err := card.ParseRawCard(raw, m.Verifier)
			if err != nil {
				return nil, err
			}
			if _, dup := found[c.Identity]; dup {
				return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateCards, c.Identity)
			}
			found[c.Identity] = c
		}
		for id, c := range found {
			m.store(ctx, id, c)
			metrics.CardLookups.WithLabelValues(metrics.SourceDirectory).Inc()
		}
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*card.Card), nil
}

func (m *Manager) cached(ctx context.Context, identity string) (*card.Card, bool) {
	if m.Cache == nil {
		return nil, false
	}
	b, err := m.Cache.Get(ctx, cachePrefix+identity)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.From(ctx).Warn("card_cache_get_failed", logger.Identity(identity), logger.Err(err))
		}
		return nil, false
	}
	var raw card.RawCard
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, false
	}
	c, err := card.ParseRawCard(raw, m.Verifier)
	if err != nil {
		// entrada corrupta o firmada con otra clave de servicio
		_ = m.Cache.Delete(ctx, cachePrefix+identity)
		return nil, false
	}
	return c, true
}

func (m *Manager) store(ctx context.Context, identity string, c *card.Card) {
	if m.Cache == nil {
		return
	}
	b, err := json.Marshal(c.Raw())
	if err != nil {
		return
	}
	if err := m.Cache.Set(ctx, cachePrefix+identity, b, m.CacheTTL); err != nil {
		logger.From(ctx).Warn("card_cache_set_failed", logger.Identity(identity), logger.Err(err))
	}
}

// UpdateCachedCards pregunta al directorio cuáles de las cards cacheadas de identities
// quedaron outdated y las reemplaza en el cache. Devuelve las identities que cambiaron.
func (m *Manager) UpdateCachedCards(ctx context.Context, identities []string) ([]string, error) {
	prev := make(map[string]*card.Card)
	byCardID := make(map[string]string)
	for _, id := range uniq(identities) {
		if c, ok := m.cached(ctx, id); ok {
			prev[id] = c
			byCardID[c.ID] = id
		}
	}
	if len(byCardID) == 0 {
		return nil, nil
	}
	cardIDs := make([]string, 0, len(byCardID))
	for cid := range byCardID {
		cardIDs = append(cardIDs, cid)
	}
	sort.Strings(cardIDs)

	var (
		mu       sync.Mutex
		outdated []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(cardIDs); start += outdatedChunk {
		chunk := cardIDs[start:min(start+outdatedChunk, len(cardIDs))]
		g.Go(func() error {
			ids, err := m.Directory.OutdatedCards(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, cid := range ids {
				if identity, ok := byCardID[cid]; ok {
					outdated = append(outdated, identity)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(outdated) == 0 {
		return nil, nil
	}
	sort.Strings(outdated)

	if m.Cache != nil {
		keys := make([]string, len(outdated))
		for i, id := range outdated {
			keys[i] = cachePrefix + id
		}
		_ = m.Cache.Delete(ctx, keys...)
	}

	fresh := make(map[string]*card.Card, len(outdated))
	for start := 0; start < len(outdated); start += searchChunk {
		found, err := m.fetch(ctx, outdated[start:min(start+searchChunk, len(outdated))])
		if err != nil {
			return nil, err
		}
		for k, v := range found {
			fresh[k] = v
		}
	}

	log := logger.From(ctx)
	for _, id := range outdated {
		next := fresh[id]
		log.Info("cached_card_replaced", logger.Identity(id), logger.CardID(prev[id].ID))
		if m.OnChanged != nil {
			m.OnChanged(id, prev[id], next)
		}
	}
	return outdated, nil
}

// uniq descarta vacíos y duplicados, preservando el orden.
func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
