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

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "products")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value := []byte(`[{"product_id":"1"}]`)
	require.NoError(t, m.Set(ctx, "products", value, time.Minute))

	got, err := m.Get(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, value, got)

	// Stored bytes are independent of the caller's slice.
	value[0] = 'x'
	got[1] = 'y'
	again, _ := m.Get(ctx, "products")
	assert.Equal(t, `[{"product_id":"1"}]`, string(again))
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 7, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "p:1", []byte("a"), time.Minute))
	require.NoError(t, m.Set(ctx, "p:2", []byte("b"), 0))

	now = now.Add(2 * time.Minute)

	_, err := m.Get(ctx, "p:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	got, err := m.Get(ctx, "p:2")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
	assert.Equal(t, 1, m.Len())
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "missing"))

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisIntegration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis integration test")
	}

	ctx := context.Background()
	r, err := NewRedis(ctx, url, "storefront-test:"+uuid.NewString()+":")
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Get(ctx, "products")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, r.Set(ctx, "products", []byte("[]"), time.Minute))
	got, err := r.Get(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	require.NoError(t, r.Delete(ctx, "products"))
	_, err = r.Get(ctx, "products")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not a url", "")
	assert.Error(t, err)
}
