package jwt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/store/core"
	"github.com/dropDatabas3/hellocards/internal/util/atomicwrite"
)

// FileSigningKeyStore guarda una clave por archivo (<kid>.json) en keysDir.
//   - Escritura atómica: write tmp → fsync → rename
//   - Privadas cifradas con la master password (argon2id + XChaCha20-Poly1305)
type FileSigningKeyStore struct {
	keysDir  string
	password string
	provider crypto.Provider

	mu sync.Mutex
}

var _ core.SigningKeyRepository = (*FileSigningKeyStore)(nil)

type keyFileData struct {
	KID           string     `json:"kid"`
	Algorithm     string     `json:"algorithm"`
	Status        string     `json:"status"`
	PublicKey     string     `json:"public_key"`
	PrivateKeyEnc string     `json:"private_key_enc,omitempty"`
	NotBefore     time.Time  `json:"not_before"`
	CreatedAt     time.Time  `json:"created_at"`
	RotatedAt     *time.Time `json:"rotated_at,omitempty"`
}

// NewFileSigningKeyStore crea el directorio si no existe. masterPassword no puede ser vacía.
func NewFileSigningKeyStore(keysDir, masterPassword string, p crypto.Provider) (*FileSigningKeyStore, error) {
	if masterPassword == "" {
		return nil, fmt.Errorf("file keystore: %w", crypto.ErrEmptyPassword)
	}
	if err := os.MkdirAll(keysDir, 0o700); err != nil {
		return nil, fmt.Errorf("create keys directory: %w", err)
	}
	if p == nil {
		p = crypto.NewEd25519Provider()
	}
	return &FileSigningKeyStore{keysDir: filepath.Clean(keysDir), password: masterPassword, provider: p}, nil
}

func (s *FileSigningKeyStore) path(kid string) string {
	return filepath.Join(s.keysDir, kid+".json")
}

func (s *FileSigningKeyStore) load(path string, withPrivate bool) (core.SigningKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.SigningKey{}, err
	}
	var f keyFileData
	if err := json.Unmarshal(data, &f); err != nil {
		return core.SigningKey{}, fmt.Errorf("unmarshal key %s: %w", filepath.Base(path), err)
	}
	pub, err := base64.StdEncoding.DecodeString(f.PublicKey)
	if err != nil {
		return core.SigningKey{}, fmt.Errorf("decode public key %s: %w", f.KID, err)
	}
	k := core.SigningKey{
		KID:       f.KID,
		Alg:       f.Algorithm,
		PublicKey: pub,
		Status:    core.KeyStatus(f.Status),
		NotBefore: f.NotBefore,
		CreatedAt: f.CreatedAt,
		RotatedAt: f.RotatedAt,
	}
	if withPrivate && f.PrivateKeyEnc != "" {
		enc, err := base64.StdEncoding.DecodeString(f.PrivateKeyEnc)
		if err != nil {
			return core.SigningKey{}, fmt.Errorf("decode private key %s: %w", f.KID, err)
		}
		priv, err := s.provider.ImportPrivateKey(enc, s.password)
		if err != nil {
			return core.SigningKey{}, fmt.Errorf("decrypt private key %s: %w", f.KID, err)
		}
		k.PrivateKey = priv
	}
	return k, nil
}

func (s *FileSigningKeyStore) save(k core.SigningKey) error {
	f := keyFileData{
		KID:       k.KID,
		Algorithm: k.Alg,
		Status:    string(k.Status),
		PublicKey: base64.StdEncoding.EncodeToString(k.PublicKey),
		NotBefore: k.NotBefore.UTC(),
		CreatedAt: k.CreatedAt.UTC(),
		RotatedAt: k.RotatedAt,
	}
	if len(k.PrivateKey) > 0 && k.Status != core.KeyRetired {
		enc, err := s.provider.ExportPrivateKey(crypto.PrivateKey(k.PrivateKey), s.password)
		if err != nil {
			return fmt.Errorf("encrypt private key %s: %w", k.KID, err)
		}
		f.PrivateKeyEnc = base64.StdEncoding.EncodeToString(enc)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	return atomicwrite.WriteFile(s.path(k.KID), data, 0o600)
}

// loadAll lee todas las claves del directorio (sin privadas salvo withPrivate).
func (s *FileSigningKeyStore) loadAll(withPrivate bool) ([]core.SigningKey, error) {
	entries, err := os.ReadDir(s.keysDir)
	if err != nil {
		return nil, err
	}
	var out []core.SigningKey
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		k, err := s.load(filepath.Join(s.keysDir, name), withPrivate)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	sortKeys(out)
	return out, nil
}

func (s *FileSigningKeyStore) activeLocked() (*core.SigningKey, error) {
	all, err := s.loadAll(false)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, k := range all {
		if k.Status == core.KeyActive && !k.NotBefore.After(now) {
			full, err := s.load(s.path(k.KID), true)
			if err != nil {
				return nil, err
			}
			return &full, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *FileSigningKeyStore) GetActiveSigningKey(ctx context.Context) (*core.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *FileSigningKeyStore) ListPublicSigningKeys(ctx context.Context) ([]core.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAll(false)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, k := range all {
		if k.Status == core.KeyActive || k.Status == core.KeyRetiring {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *FileSigningKeyStore) ListAllSigningKeys(ctx context.Context) ([]core.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAll(false)
}

func (s *FileSigningKeyStore) InsertSigningKey(ctx context.Context, k *core.SigningKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path(k.KID)); err == nil {
		return core.ErrConflict
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	cp := *k
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.NotBefore.IsZero() {
		cp.NotBefore = cp.CreatedAt
	}
	return s.save(cp)
}

func (s *FileSigningKeyStore) RotateSigningKey(ctx context.Context, newKey core.SigningKey) (*core.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	prev, err := s.activeLocked()
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if prev != nil {
		prev.Status = core.KeyRetiring
		prev.RotatedAt = &now
		if err := s.save(*prev); err != nil {
			return nil, err
		}
		crypto.PrivateKey(prev.PrivateKey).Wipe()
		prev.PrivateKey = nil
	}

	cp := newKey
	cp.Status = core.KeyActive
	if cp.NotBefore.IsZero() {
		cp.NotBefore = now
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if err := s.save(cp); err != nil {
		return nil, err
	}
	return prev, nil
}

func (s *FileSigningKeyStore) RetireOldKeys(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAll(false)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range all {
		if k.Status == core.KeyRetiring && k.RotatedAt != nil && k.RotatedAt.Before(cutoff) {
			k.Status = core.KeyRetired
			// retired: se reescribe sin la privada
			if err := s.save(k); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
