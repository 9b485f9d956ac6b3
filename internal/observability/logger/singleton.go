package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu       sync.RWMutex
	instance *zap.Logger
)

// Init inicializa el singleton. Solo la primera llamada tiene efecto.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = build(cfg)
	}
}

// Replace instala un logger arbitrario (tests: zaptest/observer) y devuelve
// una función que restaura el anterior.
func Replace(l *zap.Logger) (restore func()) {
	mu.Lock()
	prev := instance
	instance = l
	mu.Unlock()
	return func() {
		mu.Lock()
		instance = prev
		mu.Unlock()
	}
}

// L retorna el singleton; sin Init usa dev/info.
func L() *zap.Logger {
	mu.RLock()
	l := instance
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(Config{Env: "dev", Level: "info"})
	return L()
}

// Named retorna un logger con nombre de componente.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With retorna un logger con campos adicionales.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushea buffers pendientes.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
