// Package rediscache implements a read-through cache-aside decorator (C15)
// over any storage.TokenStore: Get/GetByName check Redis first and populate
// it on a miss; Put writes through to the wrapped store and then refreshes
// the cached entry, and Delete writes through and then evicts it, so a
// revoke made through this Store is visible to its readers at once and any
// other cached copy ages out within one TTL window without an invalidation
// fan-out.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gimel-foundation/authcore/pkg/autherrors"
	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/obsmetrics"
	"github.com/gimel-foundation/authcore/pkg/storage"
)

// Config configures a Store.
type Config struct {
	Prefix string        // key prefix, e.g. "authcore:"
	TTL    time.Duration // cache entry lifetime; defaults to 30s

	// Metrics, when set, records cache hit/miss counters under the
	// "rediscache" backend label. Nil disables metrics recording.
	Metrics *obsmetrics.Recorder
}

// Store wraps a storage.TokenStore with a Redis read-through cache.
type Store struct {
	next    storage.TokenStore
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	metrics *obsmetrics.Recorder
}

// NewStore builds a cache-aside Store in front of next, using client as the
// Redis connection.
func NewStore(next storage.TokenStore, client *redis.Client, cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Store{next: next, client: client, prefix: cfg.Prefix, ttl: ttl, metrics: cfg.Metrics}
}

func (s *Store) idKey(id string) string {
	return s.prefix + "token:" + id
}

func (s *Store) nameKey(name string) string {
	return s.prefix + "name:" + name
}

func (s *Store) recordOp(status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordStorageOperation("rediscache", "get", status)
}

func (s *Store) readThrough(ctx context.Context, key string, fetch func(ctx context.Context) (*model.TokenRecord, error)) (*model.TokenRecord, error) {
	cached, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var record model.TokenRecord
		if jsonErr := json.Unmarshal(cached, &record); jsonErr == nil {
			s.recordOp("hit")
			return &record, nil
		}
	}

	record, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.recordOp("miss")
	if record != nil {
		s.set(ctx, record)
	}
	return record, nil
}

func (s *Store) set(ctx context.Context, record *model.TokenRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	s.client.Set(ctx, s.idKey(record.ID), data, s.ttl)
	if record.Name != "" {
		s.client.Set(ctx, s.nameKey(record.Name), data, s.ttl)
	}
}

func (s *Store) evict(ctx context.Context, id, name string) {
	if id != "" {
		s.client.Del(ctx, s.idKey(id))
	}
	if name != "" {
		s.client.Del(ctx, s.nameKey(name))
	}
}

// Get returns the record with id, checking the cache before falling through
// to the wrapped store.
func (s *Store) Get(ctx context.Context, id string) (*model.TokenRecord, error) {
	return s.readThrough(ctx, s.idKey(id), func(ctx context.Context) (*model.TokenRecord, error) {
		return s.next.Get(ctx, id)
	})
}

// GetByName returns the record with name, checking the cache before falling
// through to the wrapped store.
func (s *Store) GetByName(ctx context.Context, name string) (*model.TokenRecord, error) {
	return s.readThrough(ctx, s.nameKey(name), func(ctx context.Context) (*model.TokenRecord, error) {
		return s.next.GetByName(ctx, name)
	})
}

// Put writes record through to the wrapped store, then refreshes the cache
// entry so a subsequent read sees the new value immediately rather than
// waiting out the stale TTL.
func (s *Store) Put(ctx context.Context, id string, record *model.TokenRecord) error {
	if err := s.next.Put(ctx, id, record); err != nil {
		return err
	}
	s.set(ctx, record)
	return nil
}

// Exists delegates to the wrapped store; existence checks bypass the cache
// since a negative cache entry would mask a concurrent create.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	return s.next.Exists(ctx, id)
}

// ExistsName delegates to the wrapped store, same reasoning as Exists.
func (s *Store) ExistsName(ctx context.Context, name string) (bool, error) {
	return s.next.ExistsName(ctx, name)
}

// ListAll delegates to the wrapped store; listing is not cached.
func (s *Store) ListAll(ctx context.Context) (map[string]*model.TokenRecord, error) {
	return s.next.ListAll(ctx)
}

// Delete removes the record from the wrapped store and evicts any cached
// entry for it, by both id and name.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	record, err := s.next.Get(ctx, id)
	if err != nil {
		return false, err
	}
	deleted, err := s.next.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if record != nil {
		s.evict(ctx, id, record.Name)
	} else {
		s.evict(ctx, id, "")
	}
	return deleted, nil
}

// Clear delegates to the wrapped store and flushes every key under prefix.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.next.Clear(ctx); err != nil {
		return err
	}
	return s.flushPrefix(ctx)
}

func (s *Store) flushPrefix(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to scan cache keys", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to evict cache keys", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Len delegates to the wrapped store.
func (s *Store) Len(ctx context.Context) (int, error) {
	return s.next.Len(ctx)
}

// Reload delegates to the wrapped store; the cache is left as-is and will
// naturally expire entries that no longer match.
func (s *Store) Reload(ctx context.Context) error {
	return s.next.Reload(ctx)
}
