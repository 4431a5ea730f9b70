package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/promotion-service/internal/domain"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

func setupTestCache(t *testing.T) (*ProductCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := NewProductCache(client, 5*time.Minute)
	return cache, mr
}

func sampleListing() []domain.ProductSummary {
	return []domain.ProductSummary{
		{
			ID:             "prod-1",
			Name:           "Linen Shirt",
			BasePrice:      4500,
			EffectivePrice: 3600,
			CategoryIDs:    []string{"cat-clothing"},
		},
		{
			ID:             "prod-2",
			Name:           "Canvas Sneakers",
			BasePrice:      5500,
			EffectivePrice: 5500,
			CategoryIDs:    []string{"cat-footwear"},
		},
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestProductCache_Get_Success(t *testing.T) {
	cache, mr := setupTestCache(t)

	listing := sampleListing()
	data, err := json.Marshal(listing)
	require.NoError(t, err)

	// Set data directly in miniredis.
	require.NoError(t, mr.Set(availableProductsKey, string(data)))

	got, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "prod-1", got[0].ID)
	assert.Equal(t, int64(3600), got[0].EffectivePrice)
	assert.Equal(t, []string{"cat-footwear"}, got[1].CategoryIDs)
}

func TestProductCache_Get_Miss(t *testing.T) {
	cache, _ := setupTestCache(t)

	got, err := cache.Get(context.Background())
	assert.Nil(t, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProductCache_Get_InvalidJSON(t *testing.T) {
	cache, mr := setupTestCache(t)

	require.NoError(t, mr.Set(availableProductsKey, "{{not-valid-json"))

	got, err := cache.Get(context.Background())
	assert.Nil(t, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal available products")
}

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

func TestProductCache_Set_Success(t *testing.T) {
	cache, mr := setupTestCache(t)

	err := cache.Set(context.Background(), sampleListing())
	require.NoError(t, err)

	assert.True(t, mr.Exists(availableProductsKey))

	raw, err := mr.Get(availableProductsKey)
	require.NoError(t, err)

	var stored []domain.ProductSummary
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Len(t, stored, 2)
	assert.Equal(t, "prod-2", stored[1].ID)
	assert.Equal(t, int64(5500), stored[1].BasePrice)
}

func TestProductCache_Set_TTL(t *testing.T) {
	cache, mr := setupTestCache(t)

	err := cache.Set(context.Background(), sampleListing())
	require.NoError(t, err)

	ttl := mr.TTL(availableProductsKey)
	assert.True(t, ttl > 4*time.Minute, "expected TTL > 4m, got %v", ttl)
	assert.True(t, ttl <= 5*time.Minute, "expected TTL <= 5m, got %v", ttl)
}

// ---------------------------------------------------------------------------
// Invalidate
// ---------------------------------------------------------------------------

func TestProductCache_Invalidate_Success(t *testing.T) {
	cache, mr := setupTestCache(t)

	require.NoError(t, cache.Set(context.Background(), sampleListing()))
	assert.True(t, mr.Exists(availableProductsKey))

	err := cache.Invalidate(context.Background())
	require.NoError(t, err)

	assert.False(t, mr.Exists(availableProductsKey))
}

func TestProductCache_Invalidate_MissingKey(t *testing.T) {
	cache, _ := setupTestCache(t)

	// Deleting a key that doesn't exist should not return an error.
	err := cache.Invalidate(context.Background())
	assert.NoError(t, err)
}
