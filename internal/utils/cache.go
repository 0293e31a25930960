package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb redis.Cmdable, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Bytes() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal(val, dest) // Unmarshal JSON into dest
}

// GetManyCache fetches several keys in one round trip and decodes the ones that exist
func GetManyCache[T any](ctx context.Context, rdb redis.Cmdable, keys []string) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil // Nothing to fetch
	}
	vals, err := rdb.MGet(ctx, keys...).Result() // Fetch all values
	if err != nil {
		return nil, err // Redis error
	}
	out := make([]T, 0, len(vals)) // Decoded values
	for _, v := range vals {
		s, ok := v.(string) // Missing keys come back as nil
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			continue // Skip values written by an incompatible version
		}
		out = append(out, item)
	}
	return out, nil
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb redis.Cmdable, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes a key from Redis
func DeleteCache(ctx context.Context, rdb redis.Cmdable, key string) error {
	return rdb.Del(ctx, key).Err() // Delete key from Redis
}
