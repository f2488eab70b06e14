package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"timekill-backend/internal/models"
)

const (
	resultCacheTTL = 900 * time.Second
	dailyWindow    = 24 * time.Hour
)

// CacheGateway wraps redis for two independent concerns: response caching by
// content hash and per-user per-day request counters. Redis outages degrade
// to cache misses and fail-open counters; they never fail a call.
type CacheGateway struct {
	redis *redis.Client
}

func NewCacheGateway(redisClient *redis.Client) *CacheGateway {
	return &CacheGateway{redis: redisClient}
}

// cacheKey derives a truncated base64 SHA-256 of the input. Truncation keeps
// keys short; collisions are tolerated since the cache is not authoritative.
func cacheKey(prefix, text string) string {
	sum := sha256.Sum256([]byte(text))
	return prefix + base64.StdEncoding.EncodeToString(sum[:])[:16]
}

func dayKey(prefix string, userID string, now time.Time) string {
	return fmt.Sprintf("%s%s:%s", prefix, userID, now.UTC().Format("2006-01-02"))
}

func (g *CacheGateway) GetHumanizeResult(ctx context.Context, text string) (*models.HumanizeResult, bool) {
	if g.redis == nil {
		return nil, false
	}

	data, err := g.redis.Get(ctx, cacheKey("humanizer:result:", text)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("humanizer cache read failed: %v", err)
		}
		return nil, false
	}

	var result models.HumanizeResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		log.Printf("humanizer cache entry corrupt, ignoring: %v", err)
		return nil, false
	}
	result.Cached = true

	return &result, true
}

func (g *CacheGateway) StoreHumanizeResult(ctx context.Context, text string, result *models.HumanizeResult) {
	if g.redis == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := g.redis.Set(ctx, cacheKey("humanizer:result:", text), data, resultCacheTTL).Err(); err != nil {
		log.Printf("humanizer cache write failed: %v", err)
	}
}

func (g *CacheGateway) GetPairs(ctx context.Context, notes string) ([]models.Pair, bool) {
	if g.redis == nil {
		return nil, false
	}

	data, err := g.redis.Get(ctx, cacheKey("pairs:result:", notes)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("pairs cache read failed: %v", err)
		}
		return nil, false
	}

	var pairs []models.Pair
	if err := json.Unmarshal([]byte(data), &pairs); err != nil {
		return nil, false
	}

	return pairs, true
}

func (g *CacheGateway) StorePairs(ctx context.Context, notes string, pairs []models.Pair) {
	if g.redis == nil {
		return
	}

	data, err := json.Marshal(pairs)
	if err != nil {
		return
	}

	if err := g.redis.Set(ctx, cacheKey("pairs:result:", notes), data, resultCacheTTL).Err(); err != nil {
		log.Printf("pairs cache write failed: %v", err)
	}
}

// AllowDaily increments the caller's counter for today and rejects with a
// RateLimitError once the ceiling is crossed. The first increment of a day
// arms a 24-hour expiry.
func (g *CacheGateway) AllowDaily(ctx context.Context, kind, userID string, ceiling int) error {
	if g.redis == nil {
		return nil
	}

	key := dayKey("ratelimit:"+kind+":", userID, time.Now())

	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		// Counter outages fail open.
		log.Printf("daily counter incr failed for %s: %v", key, err)
		return nil
	}

	if count == 1 {
		if err := g.redis.Expire(ctx, key, dailyWindow).Err(); err != nil {
			log.Printf("daily counter expire failed for %s: %v", key, err)
		}
	}

	if count > int64(ceiling) {
		return &RateLimitError{Limit: ceiling}
	}

	return nil
}
