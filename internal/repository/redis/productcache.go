package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopforge/promotion-service/internal/domain"
	apperrors "github.com/shopforge/promotion-service/pkg/errors"
)

const availableProductsKey = "promotion:available_products"

// ProductCache caches the available-products listing in Redis. The engine
// invalidates it whenever promotional prices change.
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProductCache creates a new Redis-backed product cache.
func NewProductCache(client *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the cached product listing. Returns apperrors.ErrNotFound
// on a cache miss.
func (c *ProductCache) Get(ctx context.Context) ([]domain.ProductSummary, error) {
	data, err := c.client.Get(ctx, availableProductsKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get available products: %w", err)
	}

	var products []domain.ProductSummary
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("unmarshal available products: %w", err)
	}

	return products, nil
}

// Set stores the product listing with the configured TTL.
func (c *ProductCache) Set(ctx context.Context, products []domain.ProductSummary) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal available products: %w", err)
	}

	if err := c.client.Set(ctx, availableProductsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set available products: %w", err)
	}

	return nil
}

// Invalidate drops the cached listing.
func (c *ProductCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, availableProductsKey).Err(); err != nil {
		return fmt.Errorf("redis del available products: %w", err)
	}

	return nil
}
