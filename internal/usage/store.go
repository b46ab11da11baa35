package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey = "usage_metrics"
	DefaultTTL = 300 * time.Second
)

var ErrNotFound = errors.New("usage snapshot not found")

// record is the stored shape; timestamp is unix seconds as a float.
type record struct {
	Counters
	Timestamp float64 `json:"timestamp"`
}

// Store persists snapshots in Redis under a single key with a TTL.
type Store struct {
	client redis.Cmdable
	limits Limits
}

// NewStore builds a store whose loaded snapshots are measured against limits.
func NewStore(client redis.Cmdable, limits Limits) (*Store, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Store{client: client, limits: limits}, nil
}

func (s *Store) Save(ctx context.Context, key string, snap Snapshot, ttl time.Duration) error {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	payload, err := json.Marshal(record{
		Counters:  snap.Counters(),
		Timestamp: float64(snap.Timestamp().UnixNano()) / float64(time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to encode usage snapshot: %w", err)
	}

	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store usage snapshot: %w", err)
	}
	return nil
}

// Load returns ErrNotFound when the key is absent or expired.
func (s *Store) Load(ctx context.Context, key string) (Snapshot, error) {
	if key == "" {
		key = DefaultKey
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("failed to read usage snapshot: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode usage snapshot: %w", err)
	}

	sec, frac := math.Modf(rec.Timestamp)
	at := time.Unix(int64(sec), int64(frac*float64(time.Second)))

	return NewSnapshot(rec.Counters, s.limits, at)
}
