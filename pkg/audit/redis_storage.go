package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStorage implements Storage over Redis: each Entry is a JSON blob
// keyed by ID, with secondary sets indexing it by type, actor, chain and
// day so Search can narrow candidates with SUNION before fetching and
// unmarshaling anything.
type RedisStorage struct {
	client     *redis.Client
	keyPrefix  string
	expiration time.Duration
}

// RedisConfig configures a RedisStorage.
type RedisConfig struct {
	// Addresses of Redis servers. Only the first is used; this storage
	// talks to a single node, not a cluster.
	Addresses []string

	Password string
	DB       int

	// KeyPrefix namespaces every key this storage writes, so one Redis
	// instance can back multiple audit logs without collision.
	KeyPrefix string

	// DefaultExpiration applied to stored entries (zero means no TTL).
	DefaultExpiration time.Duration

	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

// NewRedisStorage dials the first configured address and verifies it
// with a PING before returning.
func NewRedisStorage(config RedisConfig) (*RedisStorage, error) {
	if len(config.Addresses) == 0 {
		return nil, fmt.Errorf("no Redis addresses provided")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Addresses[0],
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{
		client:     client,
		keyPrefix:  config.KeyPrefix,
		expiration: config.DefaultExpiration,
	}, nil
}

// Store writes entry and updates its type, actor, chain and day indices.
func (rs *RedisStorage) Store(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if err := rs.client.Set(ctx, rs.entryKey(entry.ID), data, rs.expiration).Err(); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	if err := rs.client.SAdd(ctx, rs.typeKey(entry.Type), entry.ID).Err(); err != nil {
		return fmt.Errorf("failed to index by type: %w", err)
	}
	if entry.ActorID != "" {
		if err := rs.client.SAdd(ctx, rs.actorKey(entry.ActorID), entry.ID).Err(); err != nil {
			return fmt.Errorf("failed to index by actor: %w", err)
		}
	}
	if entry.ChainID != "" {
		if err := rs.client.SAdd(ctx, rs.chainKey(entry.ChainID), entry.ID).Err(); err != nil {
			return fmt.Errorf("failed to index by chain: %w", err)
		}
	}
	if err := rs.client.SAdd(ctx, rs.timeKey(entry.Timestamp), entry.ID).Err(); err != nil {
		return fmt.Errorf("failed to index by time: %w", err)
	}
	return nil
}

// Search takes candidate IDs from the type index when filter.Types is
// set, or from a SCAN over every entry key otherwise, then intersects
// them with the actor and time-range indices when those filters are set,
// fetches the survivors in one pipeline, and applies matchesFilter.
func (rs *RedisStorage) Search(ctx context.Context, filter *Filter) ([]*Entry, error) {
	ids, err := rs.candidateIDs(ctx, filter)
	if err != nil {
		return nil, err
	}

	if len(filter.ActorIDs) > 0 {
		actorKeys := make([]string, len(filter.ActorIDs))
		for i, actor := range filter.ActorIDs {
			actorKeys[i] = rs.actorKey(actor)
		}
		actorIDs, err := rs.client.SUnion(ctx, actorKeys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get actor entries: %w", err)
		}
		ids = intersection(ids, actorIDs)
	}

	if filter.TimeRange != nil {
		timeKeys := rs.timeKeysInRange(filter.TimeRange.Start, filter.TimeRange.End)
		timeIDs, err := rs.client.SUnion(ctx, timeKeys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get time range entries: %w", err)
		}
		ids = intersection(ids, timeIDs)
	}

	entries, err := rs.fetchEntries(ctx, ids)
	if err != nil {
		return nil, err
	}

	var results []*Entry
	for _, entry := range entries {
		if !rs.matchesFilter(entry, filter) {
			continue
		}
		results = append(results, entry)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// candidateIDs returns the union of type-indexed IDs when filter.Types
// is set, otherwise every entry ID via SCAN.
func (rs *RedisStorage) candidateIDs(ctx context.Context, filter *Filter) ([]string, error) {
	if len(filter.Types) > 0 {
		typeKeys := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			typeKeys[i] = rs.typeKey(t)
		}
		ids, err := rs.client.SUnion(ctx, typeKeys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get entry IDs: %w", err)
		}
		return ids, nil
	}

	var ids []string
	var cursor uint64
	pattern := rs.entryKey("*")
	for {
		keys, next, err := rs.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan entries: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, rs.extractID(key))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

// fetchEntries loads and unmarshals ids in a single pipelined round trip.
func (rs *RedisStorage) fetchEntries(ctx context.Context, ids []string) ([]*Entry, error) {
	pipe := rs.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, rs.entryKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}

	entries := make([]*Entry, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get entry data: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// GetByID fetches a single entry directly by key.
func (rs *RedisStorage) GetByID(ctx context.Context, id string) (*Entry, error) {
	data, err := rs.client.Get(ctx, rs.entryKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// GetChain retrieves every entry sharing chainID via the chain index.
func (rs *RedisStorage) GetChain(ctx context.Context, chainID string) ([]*Entry, error) {
	ids, err := rs.client.SMembers(ctx, rs.chainKey(chainID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chain entries: %w", err)
	}
	return rs.fetchEntries(ctx, ids)
}

// Cleanup walks the day indices older than before, deleting their
// entries and the index itself.
func (rs *RedisStorage) Cleanup(ctx context.Context, before time.Time) error {
	pattern := rs.keyPrefix + "time:*"
	var cursor uint64
	for {
		keys, next, err := rs.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan time keys: %w", err)
		}

		for _, key := range keys {
			if !rs.extractTime(key).Before(before) {
				continue
			}
			ids, err := rs.client.SMembers(ctx, key).Result()
			if err != nil {
				continue
			}

			pipe := rs.client.Pipeline()
			for _, id := range ids {
				pipe.Del(ctx, rs.entryKey(id))
			}
			pipe.Del(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to cleanup entries: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// Close releases the underlying Redis client.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}

// matchesFilter applies the package-level matchesFilter that
// MemoryStorage uses, so the two backends never drift on filter
// semantics: type, action, result, chain ID and time range. Tags,
// metadata, levels, actor types and target filters are not applied.
func (rs *RedisStorage) matchesFilter(entry *Entry, filter *Filter) bool {
	return matchesFilter(entry, filter)
}

// intersection returns the elements common to both slices.
func intersection(a, b []string) []string {
	m := make(map[string]bool, len(a))
	for _, item := range a {
		m[item] = true
	}

	var result []string
	for _, item := range b {
		if m[item] {
			result = append(result, item)
		}
	}
	return result
}

func (rs *RedisStorage) entryKey(id string) string {
	return fmt.Sprintf("%sentry:%s", rs.keyPrefix, id)
}

func (rs *RedisStorage) typeKey(typ Type) string {
	return fmt.Sprintf("%stype:%s", rs.keyPrefix, typ)
}

func (rs *RedisStorage) actorKey(actorID string) string {
	return fmt.Sprintf("%sactor:%s", rs.keyPrefix, actorID)
}

func (rs *RedisStorage) chainKey(chainID string) string {
	return fmt.Sprintf("%schain:%s", rs.keyPrefix, chainID)
}

func (rs *RedisStorage) timeKey(t time.Time) string {
	return fmt.Sprintf("%stime:%s", rs.keyPrefix, t.Format("2006-01-02"))
}

func (rs *RedisStorage) extractID(key string) string {
	return key[len(rs.entryKey("")):]
}

func (rs *RedisStorage) extractTime(key string) time.Time {
	timeStr := key[len(rs.keyPrefix+"time:"):]
	t, _ := time.Parse("2006-01-02", timeStr)
	return t
}

func (rs *RedisStorage) timeKeysInRange(start, end time.Time) []string {
	var keys []string
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		keys = append(keys, rs.timeKey(t))
	}
	return keys
}
