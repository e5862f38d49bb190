package cache

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueryCache is the narrow surface EmbedderService needs from a query
// embedding cache — satisfied by both EmbeddingCache (in-process) and
// RedisEmbeddingCache (shared across replicas).
type QueryCache interface {
	Get(queryHash string) ([]float32, bool)
	Set(queryHash string, vec []float32)
}

// RedisEmbeddingCache stores query embedding vectors in Redis, each key
// carrying its own TTL via SET EX rather than a background sweep — the
// natural idiom once expiry is delegated to the store itself.
type RedisEmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
	ctx    context.Context
}

// NewRedisEmbeddingCache wraps an existing *redis.Client. The caller owns
// the client's lifecycle (construction and Close).
func NewRedisEmbeddingCache(client *redis.Client, ttl time.Duration) *RedisEmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL()
	}
	return &RedisEmbeddingCache{client: client, ttl: ttl, ctx: context.Background()}
}

// Get returns a cached embedding vector if present and not expired.
func (c *RedisEmbeddingCache) Get(queryHash string) ([]float32, bool) {
	raw, err := c.client.Get(c.ctx, redisKey(queryHash)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("[EMBED-CACHE] redis get failed", "query_hash", queryHash, "error", err)
		}
		return nil, false
	}
	vec := decodeVector(raw)
	slog.Info("[EMBED-CACHE] hit", "query_hash", queryHash, "backend", "redis")
	return vec, true
}

// Set stores an embedding vector with the cache's configured TTL.
func (c *RedisEmbeddingCache) Set(queryHash string, vec []float32) {
	if err := c.client.Set(c.ctx, redisKey(queryHash), encodeVector(vec), c.ttl).Err(); err != nil {
		slog.Warn("[EMBED-CACHE] redis set failed", "query_hash", queryHash, "error", err)
		return
	}
	slog.Info("[EMBED-CACHE] set", "query_hash", queryHash, "vec_dim", len(vec), "backend", "redis")
}

func redisKey(queryHash string) string {
	return "smartrag:embcache:" + queryHash
}

// encodeVector/decodeVector pack a []float32 as a flat little-endian byte
// string so a single Redis value round-trips the whole vector.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
