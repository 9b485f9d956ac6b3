package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseClient(t *testing.T, c Client) {
	ctx := context.Background()
	key := "k-" + uuid.NewString()

	_, err := c.Get(ctx, key)
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, key, []byte("v1"), time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// el valor devuelto es una copia
	got[0] = 'x'
	again, _ := c.Get(ctx, key)
	assert.Equal(t, []byte("v1"), again)

	require.NoError(t, c.Delete(ctx, key, "other"))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Ping(ctx))
}

func TestMemoryClient(t *testing.T) {
	c := NewMemory("cards:", time.Minute)
	defer c.Close()
	exerciseClient(t, c)
}

func TestMemoryClient_Expiration(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("", time.Minute)
	require.NoError(t, c.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "memcached"})
	assert.Error(t, err)
}

func TestRedisClient(t *testing.T) {
	addr := os.Getenv("CARDS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CARDS_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), Config{Driver: "redis", Addr: addr, Prefix: "cards-test:"})
	require.NoError(t, err)
	defer c.Close()
	exerciseClient(t, c)
}
