package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter es la misma ventana fija que RedisLimiter pero in-process.
// Solo sirve con una única instancia del servicio.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	hits  int64
}

func NewMemoryLimiter(max int, w time.Duration) *MemoryLimiter {
	return &MemoryLimiter{Max: int64(max), Window: w, windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}
	start := now.Truncate(l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.windows == nil {
		l.windows = make(map[string]*window)
	}
	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
		l.gcLocked(start)
	}
	w.hits++
	ttl := start.Add(l.Window).Sub(now)
	return fixedWindowResult(w.hits, l.Max, ttl, l.Window), nil
}

// gcLocked descarta ventanas vencidas.
func (l *MemoryLimiter) gcLocked(current time.Time) {
	for k, w := range l.windows {
		if w.start.Before(current) {
			delete(l.windows, k)
		}
	}
}
