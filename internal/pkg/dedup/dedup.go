package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"parliasearch/internal/pkg/config"
	"parliasearch/internal/pkg/logger"
)

// Tracks document identifiers that have already been accepted. Seen and Mark
// are called under the pipeline's mutex, together with the batch append, so
// implementations need no locking of their own for correctness. The
// in-memory one keeps a lock anyway so it is safe standalone.
type Deduper interface {
	Seen(id string) bool
	Mark(id string)
}

// Run-scoped in-memory seen-set. This is the default: re-running ingestion
// is idempotent at the store level, so cross-run state is optional.
type memoryDeduper struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewMemoryDeduper() Deduper {
	return &memoryDeduper{ids: make(map[string]struct{})}
}

func (d *memoryDeduper) Seen(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, found := d.ids[id]
	return found
}

func (d *memoryDeduper) Mark(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[id] = struct{}{}
}

// Redis-backed identifier set for installations that want dedup continuity
// across runs. Identifiers live in one Redis SET.
type redisDeduper struct {
	client *redis.Client
	key    string
}

func NewRedisDeduper(cfg *config.Config) (Deduper, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Log.Error("Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	logger.Log.Info("Connected to Redis",
		zap.String("host", cfg.RedisHost),
		zap.String("port", cfg.RedisPort))

	return &redisDeduper{client: rdb, key: "ingest_seen_ids"}, nil
}

func (d *redisDeduper) Seen(id string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	exists, err := d.client.SIsMember(ctx, d.key, id).Result()
	if err != nil {
		// On error assume unseen so a Redis hiccup cannot block indexing;
		// the store upsert is idempotent either way.
		logger.Log.Error("Redis seen-check failed", zap.Error(err))
		return false
	}
	return exists
}

func (d *redisDeduper) Mark(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.client.SAdd(ctx, d.key, id).Err(); err != nil {
		logger.Log.Error("Failed to record identifier in Redis", zap.Error(err))
	}
}
