package jwt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
	"github.com/dropDatabas3/hellocards/internal/store/core"
)

// PersistentKeystore mantiene cache local de la clave activa y lee del store.
type PersistentKeystore struct {
	store    core.SigningKeyRepository
	provider crypto.Provider

	mu         sync.RWMutex
	activeKID  string
	activePriv crypto.PrivateKey
	activePub  crypto.PublicKey
	cacheUntil time.Time
	cacheTTL   time.Duration

	lastJWKS  []byte
	jwksUntil time.Time
	jwksTTL   time.Duration
}

var (
	_ KeySource   = (*PersistentKeystore)(nil)
	_ KeyResolver = (*PersistentKeystore)(nil)
)

func NewPersistentKeystore(s core.SigningKeyRepository, p crypto.Provider) *PersistentKeystore {
	if p == nil {
		p = crypto.NewEd25519Provider()
	}
	return &PersistentKeystore{
		store:    s,
		provider: p,
		cacheTTL: 30 * time.Second,
		jwksTTL:  15 * time.Second,
	}
}

func (k *PersistentKeystore) newKey(now time.Time) (core.SigningKey, error) {
	kp, err := k.provider.GenerateKeyPair()
	if err != nil {
		return core.SigningKey{}, err
	}
	return core.SigningKey{
		KID:        kp.Public.ID(),
		Alg:        "EdDSA",
		PublicKey:  kp.Public,
		PrivateKey: kp.Private,
		Status:     core.KeyActive,
		NotBefore:  now,
		CreatedAt:  now,
	}, nil
}

// EnsureBootstrap genera una clave activa si no existe ninguna.
func (k *PersistentKeystore) EnsureBootstrap(ctx context.Context) error {
	_, err := k.store.GetActiveSigningKey(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	key, err := k.newKey(time.Now().UTC())
	if err != nil {
		return err
	}
	if err := k.store.InsertSigningKey(ctx, &key); err != nil {
		return err
	}
	logger.L().Named("keystore").Info("signing_key_bootstrapped", logger.KID(key.KID))
	return nil
}

// Active devuelve la clave activa (cacheada). La privada es una copia.
func (k *PersistentKeystore) Active(ctx context.Context) (string, crypto.PrivateKey, error) {
	kid, priv, _, err := k.active(ctx)
	return kid, priv, err
}

// ActivePublic devuelve kid y pública de la clave activa.
func (k *PersistentKeystore) ActivePublic(ctx context.Context) (string, crypto.PublicKey, error) {
	kid, priv, pub, err := k.active(ctx)
	priv.Wipe()
	return kid, pub, err
}

func (k *PersistentKeystore) active(ctx context.Context) (string, crypto.PrivateKey, crypto.PublicKey, error) {
	k.mu.RLock()
	if time.Now().Before(k.cacheUntil) && k.activeKID != "" && len(k.activePriv) > 0 {
		defer k.mu.RUnlock()
		return k.activeKID, k.activePriv.Clone(), k.activePub.Clone(), nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if time.Now().Before(k.cacheUntil) && k.activeKID != "" && len(k.activePriv) > 0 {
		return k.activeKID, k.activePriv.Clone(), k.activePub.Clone(), nil
	}

	rec, err := k.store.GetActiveSigningKey(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", nil, nil, ErrNoActiveKey
		}
		return "", nil, nil, err
	}
	if len(rec.PrivateKey) == 0 {
		return "", nil, nil, fmt.Errorf("%w: active key %s has no private material", ErrNoActiveKey, rec.KID)
	}
	k.activePriv.Wipe()
	k.activeKID = rec.KID
	k.activePriv = crypto.PrivateKey(rec.PrivateKey)
	k.activePub = crypto.PublicKey(rec.PublicKey)
	k.cacheUntil = time.Now().Add(k.cacheTTL)
	return k.activeKID, k.activePriv.Clone(), k.activePub.Clone(), nil
}

// Rotate crea una nueva clave activa; la anterior pasa a retiring y sigue publicada en el JWKS.
func (k *PersistentKeystore) Rotate(ctx context.Context) (newKID, prevKID string, err error) {
	key, err := k.newKey(time.Now().UTC())
	if err != nil {
		return "", "", err
	}
	prev, err := k.store.RotateSigningKey(ctx, key)
	if err != nil {
		return "", "", err
	}
	k.Invalidate()
	if prev != nil {
		prevKID = prev.KID
	}
	logger.L().Named("keystore").Info("signing_key_rotated", logger.KID(key.KID), logger.String("prev_kid", prevKID))
	return key.KID, prevKID, nil
}

// RetireOlderThan pasa a retired las claves retiring rotadas hace más de grace.
func (k *PersistentKeystore) RetireOlderThan(ctx context.Context, grace time.Duration) (int, error) {
	n, err := k.store.RetireOldKeys(ctx, time.Now().UTC().Add(-grace))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		k.Invalidate()
	}
	return n, nil
}

// List devuelve todas las claves sin material privado.
func (k *PersistentKeystore) List(ctx context.Context) ([]core.SigningKey, error) {
	return k.store.ListAllSigningKeys(ctx)
}

// Invalidate descarta la clave activa y el JWKS cacheados.
func (k *PersistentKeystore) Invalidate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.activePriv.Wipe()
	k.activeKID, k.activePriv, k.activePub = "", nil, nil
	k.cacheUntil = time.Time{}
	k.lastJWKS, k.jwksUntil = nil, time.Time{}
}

// PublicKeyByKID devuelve la pública para un KID (active o retiring).
func (k *PersistentKeystore) PublicKeyByKID(ctx context.Context, kid string) (crypto.PublicKey, error) {
	k.mu.RLock()
	if kid != "" && kid == k.activeKID && len(k.activePub) > 0 {
		pub := k.activePub.Clone()
		k.mu.RUnlock()
		return pub, nil
	}
	k.mu.RUnlock()

	recs, err := k.store.ListPublicSigningKeys(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.KID == kid {
			return crypto.PublicKey(r.PublicKey).Clone(), nil
		}
	}
	return nil, ErrKIDNotFound
}

// JWKSJSON construye el JWKS a partir del store (cache corto).
func (k *PersistentKeystore) JWKSJSON(ctx context.Context) ([]byte, error) {
	k.mu.RLock()
	if time.Now().Before(k.jwksUntil) && len(k.lastJWKS) > 0 {
		defer k.mu.RUnlock()
		return k.lastJWKS, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if time.Now().Before(k.jwksUntil) && len(k.lastJWKS) > 0 {
		return k.lastJWKS, nil
	}

	pubKeys, err := k.store.ListPublicSigningKeys(ctx)
	if err != nil {
		return nil, err
	}
	j, err := buildJWKS(pubKeys)
	if err != nil {
		return nil, err
	}
	k.lastJWKS = j
	k.jwksUntil = time.Now().Add(k.jwksTTL)
	return j, nil
}
