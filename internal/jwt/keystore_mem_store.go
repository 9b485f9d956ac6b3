package jwt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/hellocards/internal/store/core"
)

// MemorySigningKeyStore guarda claves en memoria (dev/tests). Siempre devuelve copias.
type MemorySigningKeyStore struct {
	mu   sync.RWMutex
	list []core.SigningKey
}

var _ core.SigningKeyRepository = (*MemorySigningKeyStore)(nil)

func NewMemorySigningKeyStore() *MemorySigningKeyStore { return &MemorySigningKeyStore{} }

func copyKey(k core.SigningKey, withPrivate bool) core.SigningKey {
	cp := k
	cp.PublicKey = append([]byte(nil), k.PublicKey...)
	cp.PrivateKey = nil
	if withPrivate && len(k.PrivateKey) > 0 {
		cp.PrivateKey = append([]byte(nil), k.PrivateKey...)
	}
	if k.RotatedAt != nil {
		t := *k.RotatedAt
		cp.RotatedAt = &t
	}
	return cp
}

func (m *MemorySigningKeyStore) activeLocked(now time.Time) int {
	idx := -1
	for i := range m.list {
		k := &m.list[i]
		if k.Status == core.KeyActive && !k.NotBefore.After(now) {
			if idx < 0 || k.NotBefore.After(m.list[idx].NotBefore) {
				idx = i
			}
		}
	}
	return idx
}

func (m *MemorySigningKeyStore) GetActiveSigningKey(ctx context.Context) (*core.SigningKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.activeLocked(time.Now().UTC())
	if idx < 0 {
		return nil, core.ErrNotFound
	}
	cp := copyKey(m.list[idx], true)
	return &cp, nil
}

func sortKeys(out []core.SigningKey) {
	rank := map[core.KeyStatus]int{core.KeyActive: 0, core.KeyRetiring: 1, core.KeyRetired: 2}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return rank[out[i].Status] < rank[out[j].Status]
		}
		return out[i].NotBefore.After(out[j].NotBefore)
	})
}

func (m *MemorySigningKeyStore) ListPublicSigningKeys(ctx context.Context) ([]core.SigningKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.SigningKey, 0, len(m.list))
	for _, k := range m.list {
		if k.Status == core.KeyActive || k.Status == core.KeyRetiring {
			out = append(out, copyKey(k, false))
		}
	}
	sortKeys(out)
	return out, nil
}

func (m *MemorySigningKeyStore) ListAllSigningKeys(ctx context.Context) ([]core.SigningKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.SigningKey, 0, len(m.list))
	for _, k := range m.list {
		out = append(out, copyKey(k, false))
	}
	sortKeys(out)
	return out, nil
}

func (m *MemorySigningKeyStore) InsertSigningKey(ctx context.Context, k *core.SigningKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.list {
		if e.KID == k.KID {
			return core.ErrConflict
		}
	}
	cp := copyKey(*k, true)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.NotBefore.IsZero() {
		cp.NotBefore = cp.CreatedAt
	}
	m.list = append(m.list, cp)
	return nil
}

func (m *MemorySigningKeyStore) RotateSigningKey(ctx context.Context, newKey core.SigningKey) (*core.SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()

	var prev *core.SigningKey
	if idx := m.activeLocked(now); idx >= 0 {
		m.list[idx].Status = core.KeyRetiring
		m.list[idx].RotatedAt = &now
		cp := copyKey(m.list[idx], false)
		prev = &cp
	}
	cp := copyKey(newKey, true)
	cp.Status = core.KeyActive
	if cp.NotBefore.IsZero() {
		cp.NotBefore = now
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	m.list = append(m.list, cp)
	return prev, nil
}

func (m *MemorySigningKeyStore) RetireOldKeys(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.list {
		k := &m.list[i]
		if k.Status == core.KeyRetiring && k.RotatedAt != nil && k.RotatedAt.Before(cutoff) {
			k.Status = core.KeyRetired
			k.PrivateKey = nil
			n++
		}
	}
	return n, nil
}
