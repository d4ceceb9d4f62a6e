// Package rediscache decorates the enrichment orchestrator with a Redis
// read-through cache keyed by site coordinate and jurisdiction.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
	"github.com/parcelworks/gis-enrichment-service/internal/enrich"
	"github.com/parcelworks/gis-enrichment-service/internal/observability"
)

const keyPrefix = "enrich:"

// coordinatePrecision rounds the cache key to roughly 1.1 meters. Two
// requests inside the same rounded cell hit the same cached result.
const coordinatePrecision = 5

// CachedEnricher wraps an Enricher with a Redis cache. Cache failures are
// never surfaced; the inner enricher always serves as the fallback path.
type CachedEnricher struct {
	inner   enrich.Enricher
	client  *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCachedEnricher creates a cache decorator around an enricher.
func NewCachedEnricher(inner enrich.Enricher, client *redis.Client, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *CachedEnricher {
	return &CachedEnricher{
		inner:   inner,
		client:  client,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Enrich serves a cached result when one exists, otherwise delegates to the
// inner enricher and stores the outcome. Concurrent requests for the same
// site share one inner call. Only complete results are cached so degraded
// runs get retried on the next request.
func (c *CachedEnricher) Enrich(ctx context.Context, req enrich.Request) (domain.EnrichmentResult, error) {
	key := c.buildKey(req)

	if result, ok := c.get(ctx, key); ok {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		result.RequestID = req.RequestID
		if result.RequestID == "" {
			result.RequestID = uuid.NewString()
		}
		return result, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := c.inner.Enrich(ctx, req)
		if err != nil {
			return result, err
		}
		if result.Status == domain.StatusComplete {
			c.put(ctx, key, result)
		}
		return result, nil
	})
	result, _ := val.(domain.EnrichmentResult)
	return result, err
}

func (c *CachedEnricher) get(ctx context.Context, key string) (domain.EnrichmentResult, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return domain.EnrichmentResult{}, false
	}
	var result domain.EnrichmentResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("cache unmarshal failed", "key", key, "error", err)
		return domain.EnrichmentResult{}, false
	}
	return result, true
}

func (c *CachedEnricher) put(ctx context.Context, key string, result domain.EnrichmentResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *CachedEnricher) buildKey(req enrich.Request) string {
	hint := strings.ToLower(strings.TrimSpace(req.JurisdictionHint))
	raw := fmt.Sprintf("%.*f,%.*f|%s",
		coordinatePrecision, req.Coordinate.Lat,
		coordinatePrecision, req.Coordinate.Lng,
		hint,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
