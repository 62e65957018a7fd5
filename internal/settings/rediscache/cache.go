// Package rediscache is a read-through Redis cache in front of any
// settings.Store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/haven-org/haven/internal/models"
	"github.com/haven-org/haven/internal/settings"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "haven:setting:"

// Store caches Get results from the wrapped store. Writes go to the wrapped
// store first and then overwrite the cached entry; missing keys are never
// cached. Read fills only land when no entry exists, so a fill that raced a
// write cannot replace the newer value.
type Store struct {
	inner  settings.Store
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

var _ settings.Store = (*Store)(nil)

// New wraps inner with a Redis cache whose entries expire after ttl.
func New(inner settings.Store, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.Named("settings_cache"),
	}
}

type entry struct {
	ID          uint      `json:"id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description *string   `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func cacheKey(key string) string {
	return keyPrefix + key
}

// Get serves from Redis when possible. Cache failures are logged and the
// wrapped store answers instead.
func (s *Store) Get(ctx context.Context, key string) (*models.Setting, error) {
	log := s.logger.With(zap.String("key", key))

	data, err := s.client.Get(ctx, cacheKey(key)).Bytes()
	switch {
	case err == nil:
		var e entry
		jsonErr := json.Unmarshal(data, &e)
		if jsonErr == nil {
			return e.setting(), nil
		}
		log.Warn("Discarding undecodable cache entry", zap.Error(jsonErr))
	case errors.Is(err, redis.Nil):
	default:
		log.Warn("Cache read failed, using backing store", zap.Error(err))
	}

	setting, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(newEntry(setting))
	if err == nil {
		err = s.client.SetNX(ctx, cacheKey(key), payload, s.ttl).Err()
	}
	if err != nil {
		log.Warn("Cache fill failed", zap.Error(err))
	}
	return setting, nil
}

// Upsert writes through and replaces the cached entry with the stored
// record. A refresh failure is returned because the cache would otherwise
// serve the old value until the TTL expires; in that case the entry is
// evicted on a best-effort basis.
func (s *Store) Upsert(ctx context.Context, key string, value []byte, meta settings.Meta) (*models.Setting, error) {
	setting, err := s.inner.Upsert(ctx, key, value, meta)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(newEntry(setting))
	if err == nil {
		err = s.client.Set(ctx, cacheKey(key), payload, s.ttl).Err()
	}
	if err != nil {
		s.logger.Error("Cache refresh failed after write", zap.String("key", key), zap.Error(err))
		s.client.Del(ctx, cacheKey(key))
		return nil, fmt.Errorf("rediscache: refresh %s: %w", key, err)
	}
	return setting, nil
}

// List always reads from the wrapped store.
func (s *Store) List(ctx context.Context, category string) ([]models.Setting, error) {
	return s.inner.List(ctx, category)
}

// Ping checks both Redis and the wrapped store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("rediscache: ping: %w", err)
	}
	return s.inner.Ping(ctx)
}

func newEntry(s *models.Setting) entry {
	return entry{
		ID:          s.ID,
		Key:         s.Key,
		Value:       s.Value,
		Description: s.Description,
		Category:    s.Category,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func (e entry) setting() *models.Setting {
	return &models.Setting{
		ID:          e.ID,
		Key:         e.Key,
		Value:       e.Value,
		Description: e.Description,
		Category:    e.Category,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
