package repository

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEmbeddingCache stores vectors as little-endian float32 blobs.
type RedisEmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisCacheConfig holds configuration for the Redis embedding cache.
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisEmbeddingCache creates a cache and checks the connection.
func NewRedisEmbeddingCache(ctx context.Context, cfg *RedisCacheConfig) (*RedisEmbeddingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisEmbeddingCache{client: client, ttl: cfg.TTL}, nil
}

// Get returns the cached vector. A miss is (nil, false, nil).
func (c *RedisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := DecodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores vec under key with the configured TTL, 0 keeps it forever.
func (c *RedisEmbeddingCache) Set(ctx context.Context, key string, vec []float32) error {
	return c.client.Set(ctx, key, EncodeVector(vec), c.ttl).Err()
}

func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}

// EncodeVector serializes vec as little-endian float32.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes, not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
