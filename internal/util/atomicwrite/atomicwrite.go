// Package atomicwrite escribe archivos de claves sin dejar contenido parcial.
package atomicwrite

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile escribe data en un temporal del mismo directorio, hace fsync y
// renombra sobre path. El archivo previo queda intacto si algo falla.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(name)
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	// en Windows el rename falla si el destino existe
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(name, path); err2 != nil {
			return fmt.Errorf("rename: %v (after remove: %v)", err, err2)
		}
	}
	return nil
}
