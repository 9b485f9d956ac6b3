package rate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 10, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.Now = func() time.Time { return now }
	ctx := context.Background()

	r1, _ := l.Allow(ctx, "alice")
	r2, _ := l.Allow(ctx, "alice")
	r3, _ := l.Allow(ctx, "alice")
	assert.True(t, r1.Allowed)
	assert.Equal(t, int64(1), r1.Remaining)
	assert.True(t, r2.Allowed)
	assert.False(t, r3.Allowed)
	assert.Equal(t, 50*time.Second, r3.RetryAfter)

	// otra identity tiene su propia ventana
	rb, _ := l.Allow(ctx, "bob")
	assert.True(t, rb.Allowed)

	// ventana siguiente
	now = now.Add(time.Minute)
	r4, _ := l.Allow(ctx, "alice")
	assert.True(t, r4.Allowed)
	assert.Equal(t, int64(1), r4.CurrentHits)
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(Config{Enabled: false, Max: 5}, nil))
	assert.Nil(t, New(Config{Enabled: true}, nil))
	_, ok := New(Config{Enabled: true, Max: 5}, nil).(*MemoryLimiter)
	assert.True(t, ok)
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("CARDS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CARDS_TEST_REDIS_ADDR not set")
	}
	client := rdb.NewClient(&rdb.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLimiter(client, "rl-test:", 1, time.Minute)
	key := uuid.NewString()
	ctx := context.Background()
	r1, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, r1.Allowed)
	r2, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, r2.Allowed)
	assert.Greater(t, r2.RetryAfter, time.Duration(0))
}
