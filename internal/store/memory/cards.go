// Package memory implementa los repositorios del directorio en memoria.
// Se usa en dev, en tests y cuando storage.driver=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/hellocards/internal/store/core"
)

type CardStore struct {
	mu         sync.RWMutex
	byID       map[string]*core.CardRecord
	byIdentity map[string][]string
}

var _ core.CardRepository = (*CardStore)(nil)

func NewCardStore() *CardStore {
	return &CardStore{
		byID:       make(map[string]*core.CardRecord),
		byIdentity: make(map[string][]string),
	}
}

func (s *CardStore) CreateCard(ctx context.Context, rec *core.CardRecord, singleActive bool) error {
	if rec == nil || rec.ID == "" || rec.Identity == "" {
		return core.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byID[rec.ID]; dup {
		return core.ErrConflict
	}

	if rec.PreviousCardID != "" {
		prev, ok := s.byID[rec.PreviousCardID]
		if !ok || prev.Identity != rec.Identity || !prev.Active() {
			return core.ErrConflict
		}
		prev.Outdated = true
	} else if singleActive {
		for _, id := range s.byIdentity[rec.Identity] {
			if s.byID[id].Active() {
				return core.ErrConflict
			}
		}
	}

	cp := rec.Clone()
	s.byID[cp.ID] = &cp
	s.byIdentity[cp.Identity] = append(s.byIdentity[cp.Identity], cp.ID)
	return nil
}

func (s *CardStore) GetCard(ctx context.Context, id string) (*core.CardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := rec.Clone()
	return &cp, nil
}

func (s *CardStore) ListActiveCards(ctx context.Context, identities []string) ([]core.CardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(identities))
	var out []core.CardRecord
	for _, identity := range identities {
		if _, ok := seen[identity]; ok {
			continue
		}
		seen[identity] = struct{}{}
		for _, id := range s.byIdentity[identity] {
			if rec := s.byID[id]; rec.Active() {
				out = append(out, rec.Clone())
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Identity != out[j].Identity {
			return out[i].Identity < out[j].Identity
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *CardStore) OutdatedAmong(ctx context.Context, ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, id := range ids {
		if rec, ok := s.byID[id]; ok && !rec.Active() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *CardStore) RevokeCard(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok || rec.RevokedAt != nil {
		return core.ErrNotFound
	}
	t := at.UTC()
	rec.RevokedAt = &t
	return nil
}
