package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carejoa-matching/internal/common/logger"
	"carejoa-matching/internal/common/metrics"
	"carejoa-matching/internal/models"
)

// CatalogReader is the read side every catalog store implements.
type CatalogReader interface {
	GetCandidates(ctx context.Context, facilityType models.FacilityType, sido, sigungu string) ([]models.Facility, error)
}

// CachedCatalog keeps region/type snapshots in Redis for ttl. Cache errors
// never fail a lookup; the source is read instead.
type CachedCatalog struct {
	source CatalogReader
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedCatalog(source CatalogReader, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedCatalog {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &CachedCatalog{source: source, redis: rdb, ttl: ttl, logger: log}
}

func catalogKey(facilityType models.FacilityType, sido, sigungu string) string {
	return fmt.Sprintf("catalog:%s:%s:%s", facilityType, sido, sigungu)
}

func (c *CachedCatalog) GetCandidates(ctx context.Context, facilityType models.FacilityType, sido, sigungu string) ([]models.Facility, error) {
	key := catalogKey(facilityType, sido, sigungu)

	cached, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var facilities []models.Facility
		if jsonErr := json.Unmarshal(cached, &facilities); jsonErr == nil {
			metrics.CatalogCacheLookups.WithLabelValues("hit").Inc()
			return facilities, nil
		}
		metrics.CatalogCacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.CatalogCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CatalogCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("catalog cache read failed", map[string]interface{}{"key": key, "error": err})
	}

	facilities, err := c.source.GetCandidates(ctx, facilityType, sido, sigungu)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(facilities); err == nil {
		if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", map[string]interface{}{"key": key, "error": err})
		}
	}
	return facilities, nil
}

// Invalidate drops one cached snapshot.
func (c *CachedCatalog) Invalidate(ctx context.Context, facilityType models.FacilityType, sido, sigungu string) error {
	return c.redis.Del(ctx, catalogKey(facilityType, sido, sigungu)).Err()
}
