// Package cache stores validated reflection artifacts in Redis, keyed on a
// digest of the full mood payload.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moodi-app/moodi/internal/domain"
)

// KeyPrefix namespaces every artifact key.
const KeyPrefix = "moodi:artifact:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis implements domain.ArtifactCache.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.ArtifactCache = (*Redis)(nil)

// NewRedis creates a cache client. It does not dial until first use.
func NewRedis(opts Options) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		}),
		ttl: opts.TTL,
	}
}

// Key returns the cache key for a payload: prefix + hex SHA-256 of its JSON.
// Struct fields marshal in declaration order, so equal payloads share a key.
func Key(payload domain.MoodPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return KeyPrefix + hex.EncodeToString(sum[:]), nil
}

// Get returns the cached artifact or domain.ErrCacheMiss.
func (r *Redis) Get(ctx context.Context, key string) (domain.Artifact, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Artifact{}, domain.ErrCacheMiss
	}
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("redis get: %w", err)
	}
	var a domain.Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Artifact{}, fmt.Errorf("decode cached artifact: %w", err)
	}
	return a, nil
}

// Set stores an artifact with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, a domain.Artifact) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
