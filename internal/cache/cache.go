package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vaultgate/vaultgate/pkg/models"
)

// Cache provides short-lived read caching using Redis. Cached values are
// advisory: every mutation path invalidates, and TTLs stay short so a missed
// invalidation heals on its own.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Listing Cache Operations

// SetListing caches a principal's namespace listing
func (c *Cache) SetListing(ctx context.Context, principal string, objects []*models.StoredObject, ttl time.Duration) error {
	data, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	key := fmt.Sprintf("listing:%s", principal)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetListing retrieves a principal's namespace listing from cache
func (c *Cache) GetListing(ctx context.Context, principal string) ([]*models.StoredObject, error) {
	key := fmt.Sprintf("listing:%s", principal)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get listing from cache: %w", err)
	}

	var objects []*models.StoredObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing: %w", err)
	}

	return objects, nil
}

// InvalidateListing removes a principal's listing from cache
func (c *Cache) InvalidateListing(ctx context.Context, principal string) error {
	key := fmt.Sprintf("listing:%s", principal)
	return c.client.Del(ctx, key).Err()
}

// Usage Cache Operations

// SetUsage caches a usage snapshot for a principal
func (c *Cache) SetUsage(ctx context.Context, principal string, remaining *models.Remaining, ttl time.Duration) error {
	data, err := json.Marshal(remaining)
	if err != nil {
		return fmt.Errorf("failed to marshal usage: %w", err)
	}

	key := fmt.Sprintf("usage:%s", principal)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetUsage retrieves a usage snapshot from cache
func (c *Cache) GetUsage(ctx context.Context, principal string) (*models.Remaining, error) {
	key := fmt.Sprintf("usage:%s", principal)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get usage from cache: %w", err)
	}

	var remaining models.Remaining
	if err := json.Unmarshal(data, &remaining); err != nil {
		return nil, fmt.Errorf("failed to unmarshal usage: %w", err)
	}

	return &remaining, nil
}

// InvalidateUsage removes a principal's usage snapshot from cache
func (c *Cache) InvalidateUsage(ctx context.Context, principal string) error {
	key := fmt.Sprintf("usage:%s", principal)
	return c.client.Del(ctx, key).Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
