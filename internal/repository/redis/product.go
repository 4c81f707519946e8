package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopcraft/selection/internal/domain"
	apperrors "github.com/shopcraft/selection/pkg/errors"
)

const productKeyPrefix = "selection:product:"

// ProductCache implements repository.ProductCache using Redis. It holds the
// last normalized catalog snapshot per product, used as the local fallback
// when the remote catalog is unreachable.
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProductCache creates a Redis-backed product cache.
func NewProductCache(client *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cached product snapshot.
func (c *ProductCache) Get(ctx context.Context, productID string) (*domain.Product, error) {
	key := productKeyPrefix + productID

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, fmt.Errorf("redis get product: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}

	return &product, nil
}

// Set stores a product snapshot with the configured TTL.
func (c *ProductCache) Set(ctx context.Context, product *domain.Product) error {
	key := productKeyPrefix + product.ID

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set product: %w", err)
	}

	return nil
}
