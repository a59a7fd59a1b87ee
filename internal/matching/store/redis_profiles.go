package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"carejoa-matching/internal/models"
)

const DefaultProfileKey = "matching:weights:history"

// RedisProfileStore persists weight profiles as a Redis list, oldest first.
type RedisProfileStore struct {
	redis redis.Cmdable
	key   string
}

func NewRedisProfileStore(rdb redis.Cmdable, key string) *RedisProfileStore {
	if key == "" {
		key = DefaultProfileKey
	}
	return &RedisProfileStore{redis: rdb, key: key}
}

func (s *RedisProfileStore) SaveProfile(ctx context.Context, p *models.WeightProfile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile v%d: %w", p.Version, err)
	}
	return s.redis.RPush(ctx, s.key, payload).Err()
}

func (s *RedisProfileStore) LoadProfiles(ctx context.Context) ([]*models.WeightProfile, error) {
	raw, err := s.redis.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	out := make([]*models.WeightProfile, 0, len(raw))
	for i, item := range raw {
		var p models.WeightProfile
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, fmt.Errorf("decode profile at %d: %w", i, err)
		}
		out = append(out, &p)
	}
	return out, nil
}
