package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCache_SetGetRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a", Count: 2}, time.Minute))

	var out payload
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Name: "a", Count: 2}, out)
}

func TestMemoryCache_MissOnUnknownKey(t *testing.T) {
	c := NewMemoryCache()

	var out payload
	hit, err := c.Get(context.Background(), "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryCache_ExpiredEntryMisses(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a"}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var out payload
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a"}, time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	var out payload
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryCache_OverwriteReplacesValue(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Count: 1}, time.Minute))
	require.NoError(t, c.Set(ctx, "k", payload{Count: 2}, time.Minute))

	var out payload
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, out.Count)
}
