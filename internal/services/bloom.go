package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// BloomFilter wraps the RedisBloom BF.* commands for a single key. The
// client is owned by the caller.
type BloomFilter struct {
	client    redis.UniversalClient
	key       string
	errorRate float64
	capacity  int64
}

func NewBloomFilter(client redis.UniversalClient, key string, errorRate float64, capacity int64) *BloomFilter {
	return &BloomFilter{
		client:    client,
		key:       key,
		errorRate: errorRate,
		capacity:  capacity,
	}
}

// Reserve creates the filter; an existing filter is not an error.
func (b *BloomFilter) Reserve(ctx context.Context) error {
	err := b.client.Do(ctx, "BF.RESERVE", b.key, b.errorRate, b.capacity).Err()
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "item exists") {
		return fmt.Errorf("bf.reserve %s: %w", b.key, err)
	}
	return nil
}

func (b *BloomFilter) Add(ctx context.Context, item string) error {
	if err := b.client.Do(ctx, "BF.ADD", b.key, item).Err(); err != nil {
		return fmt.Errorf("bf.add %s: %w", b.key, err)
	}
	return nil
}

func (b *BloomFilter) AddMany(ctx context.Context, items []string) error {
	if len(items) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(items)+2)
	args = append(args, "BF.MADD", b.key)
	for _, item := range items {
		args = append(args, item)
	}
	if err := b.client.Do(ctx, args...).Err(); err != nil {
		return fmt.Errorf("bf.madd %s: %w", b.key, err)
	}
	return nil
}

// Exists is false only when the item was definitely never added.
func (b *BloomFilter) Exists(ctx context.Context, item string) (bool, error) {
	ok, err := b.client.Do(ctx, "BF.EXISTS", b.key, item).Bool()
	if err != nil {
		return false, fmt.Errorf("bf.exists %s: %w", b.key, err)
	}
	return ok, nil
}
