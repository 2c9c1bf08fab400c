package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pickflow/separation/internal/config"
	"github.com/pickflow/separation/pkg/observability"
)

// RedisClient wraps redis.Client with the layered response cache
// pkg/middleware's CacheMiddleware stores cacheable GET responses
// (order list, order summary/detail, purchase queue) in. Redis is a
// best-effort dependency here: main.go starts the coordinator without it
// if the connection fails, so every method on this type must degrade to
// an error rather than panic when Redis is unreachable.
type RedisClient struct {
	*redis.Client
	logger      *observability.Logger
	metrics     *RedisMetrics
	cacheConfig *CacheConfig
	mu          sync.RWMutex
}

// RedisMetrics tracks cache hit/miss/set counters for GetLayered/SetLayered.
type RedisMetrics struct {
	HitCount    int64
	MissCount   int64
	SetCount    int64
	DeleteCount int64
	AvgLatency  time.Duration
	mu          sync.RWMutex
}

// CacheConfig contains caching configuration
type CacheConfig struct {
	DefaultTTL     time.Duration
	MaxMemory      string
	EvictionPolicy string
	EnableMetrics  bool
}

// CacheLayer selects a cached entry's key prefix and TTL: L1 one minute,
// L2 fifteen minutes, L3 one hour. CacheMiddleware stores every response
// in L2; entries reach L1 only through GetLayered's promotion.
type CacheLayer int

const (
	L1Cache CacheLayer = iota
	L2Cache
	L3Cache
)

// CacheEntry is one cached HTTP response, wrapped with the bookkeeping
// GetLayered/SetLayered need for promotion and invalidation.
type CacheEntry struct {
	Data         interface{} `json:"data"`
	CreatedAt    time.Time   `json:"created_at"`
	LastAccessed time.Time   `json:"last_accessed"`
	AccessCount  int64       `json:"access_count"`
	Layer        CacheLayer  `json:"layer"`
	TTL          time.Duration `json:"ttl"`
}

// NewRedisClient opens the response-cache Redis connection described by
// cfg and starts background metrics collection.
func NewRedisClient(cfg config.RedisConfig, logger *observability.Logger) (*RedisClient, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = 5
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	cacheConfig := &CacheConfig{
		DefaultTTL:     5 * time.Minute,
		MaxMemory:      "256mb",
		EvictionPolicy: "allkeys-lru",
		EnableMetrics:  true,
	}

	redisClient := &RedisClient{
		Client:      client,
		logger:      logger,
		metrics:     &RedisMetrics{},
		cacheConfig: cacheConfig,
	}

	go redisClient.collectMetricsLoop()

	logger.Info(ctx, "response cache connected", map[string]interface{}{
		"pool_size":       opt.PoolSize,
		"eviction_policy": cacheConfig.EvictionPolicy,
	})

	return redisClient, nil
}

// collectMetricsLoop periodically logs cache hit-rate so a degraded
// response cache (high miss rate after a deploy, for instance) shows up
// in the logs without needing a dedicated metrics endpoint.
func (r *RedisClient) collectMetricsLoop() {
	if !r.cacheConfig.EnableMetrics {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		r.logMetrics()
	}
}

func (r *RedisClient) logMetrics() {
	r.metrics.mu.RLock()
	hits, misses := r.metrics.HitCount, r.metrics.MissCount
	r.metrics.mu.RUnlock()

	total := hits + misses
	if total == 0 {
		return
	}

	r.logger.Debug(context.Background(), "response cache hit rate", map[string]interface{}{
		"hit_count":  hits,
		"miss_count": misses,
		"hit_rate":   float64(hits) / float64(total) * 100,
	})
}

// SetLayered caches value under the given layer's TTL and key prefix.
func (r *RedisClient) SetLayered(ctx context.Context, key string, value interface{}, layer CacheLayer) error {
	start := time.Now()

	var ttl time.Duration
	var keyPrefix string
	switch layer {
	case L1Cache:
		ttl, keyPrefix = 1*time.Minute, "l1:"
	case L2Cache:
		ttl, keyPrefix = 15*time.Minute, "l2:"
	case L3Cache:
		ttl, keyPrefix = 1*time.Hour, "l3:"
	default:
		ttl, keyPrefix = r.cacheConfig.DefaultTTL, "default:"
	}

	now := time.Now()
	entry := &CacheEntry{
		Data:         value,
		CreatedAt:    now,
		LastAccessed: now,
		Layer:        layer,
		TTL:          ttl,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	err = r.Set(ctx, keyPrefix+key, data, ttl).Err()
	r.updateMetrics("set", time.Since(start))
	if err == nil {
		r.metrics.mu.Lock()
		r.metrics.SetCount++
		r.metrics.mu.Unlock()
	}
	return err
}

// GetLayered looks a key up across cache layers (L1 -> L2 -> L3),
// promoting it to a hotter layer once it has been accessed often enough
// to be worth the shorter TTL.
func (r *RedisClient) GetLayered(ctx context.Context, key string) (interface{}, bool, error) {
	start := time.Now()

	for _, prefix := range []string{"l1:", "l2:", "l3:"} {
		result := r.Get(ctx, prefix+key)
		if result.Err() != nil {
			continue
		}

		var entry CacheEntry
		if err := json.Unmarshal([]byte(result.Val()), &entry); err != nil {
			continue
		}

		entry.AccessCount++
		if updated, err := json.Marshal(entry); err == nil {
			r.Set(ctx, prefix+key, updated, redis.KeepTTL)
		}
		if entry.AccessCount > 10 && prefix != "l1:" {
			r.promoteToHigherLayer(ctx, key, &entry)
		}

		r.updateMetrics("get", time.Since(start))
		r.metrics.mu.Lock()
		r.metrics.HitCount++
		r.metrics.mu.Unlock()
		return entry.Data, true, nil
	}

	r.updateMetrics("get", time.Since(start))
	r.metrics.mu.Lock()
	r.metrics.MissCount++
	r.metrics.mu.Unlock()
	return nil, false, nil
}

func (r *RedisClient) promoteToHigherLayer(ctx context.Context, key string, entry *CacheEntry) {
	var newLayer CacheLayer
	switch entry.Layer {
	case L3Cache:
		newLayer = L2Cache
	case L2Cache:
		newLayer = L1Cache
	default:
		return
	}

	if err := r.SetLayered(ctx, key, entry.Data, newLayer); err != nil {
		r.logger.Warn(ctx, "failed to promote cache entry", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
		return
	}
	r.logger.Debug(ctx, "cache entry promoted", map[string]interface{}{
		"key": key, "from_layer": entry.Layer, "to_layer": newLayer,
	})
}

// DeleteKeys removes the given keys from the response cache, exactly as
// named (no layer prefix is added). Nothing calls it when a batch apply
// changes an order, so cached order responses stay until they expire.
func (r *RedisClient) DeleteKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := r.Del(ctx, keys...).Err()
	r.updateMetrics("delete", time.Since(start))
	if err == nil {
		r.metrics.mu.Lock()
		r.metrics.DeleteCount += int64(len(keys))
		r.metrics.mu.Unlock()
	}
	return err
}

func (r *RedisClient) updateMetrics(operation string, duration time.Duration) {
	if !r.cacheConfig.EnableMetrics {
		return
	}
	r.metrics.mu.Lock()
	defer r.metrics.mu.Unlock()
	if r.metrics.AvgLatency == 0 {
		r.metrics.AvgLatency = duration
	} else {
		alpha := 0.1
		r.metrics.AvgLatency = time.Duration(float64(r.metrics.AvgLatency)*(1-alpha) + float64(duration)*alpha)
	}
}

// Close closes the response cache connection.
func (r *RedisClient) Close() error {
	r.logger.Info(context.Background(), "closing response cache connection")
	return r.Client.Close()
}

// Health checks that the response cache is reachable, warning (but not
// failing) on elevated latency since a slow cache is still a usable one.
func (r *RedisClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("response cache health check failed: %w", err)
	}

	if latency := time.Since(start); latency > 100*time.Millisecond {
		r.logger.Warn(ctx, "high response cache latency", map[string]interface{}{
			"latency": latency,
		})
	}
	return nil
}
