package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis-backed store.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	MaxRecords int
	Prefix     string // key prefix, default "borp"
}

// RedisStore keeps records in Redis so several agent processes share history.
//
// Per agent it uses a list of JSON records (newest at the head, trimmed to
// MaxRecords), a sorted set of the same number of recent ids for idempotent
// appends, and a set of normalized authors.
type RedisStore struct {
	rdb    *redis.Client
	max    int
	prefix string
}

// NewRedisStore connects to Redis and validates the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("memory: redis ping failed: %w", err)
	}

	return newRedisStore(rdb, cfg), nil
}

func newRedisStore(rdb *redis.Client, cfg RedisConfig) *RedisStore {
	max := cfg.MaxRecords
	if max <= 0 {
		max = DefaultMaxRecords
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "borp"
	}
	return &RedisStore{rdb: rdb, max: max, prefix: prefix}
}

func (s *RedisStore) key(agentID, what string) string {
	return s.prefix + ":memory:" + agentID + ":" + what
}

// appendScript records an id, pushes the record and trims both the list and
// the id window in one atomic step. It returns 0 for an id already seen.
//
// KEYS: seen zset, records list, authors set, sequence counter.
// ARGV: id, record JSON, max records, normalized author.
var appendScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 0
end
redis.call('ZADD', KEYS[1], redis.call('INCR', KEYS[4]), ARGV[1])
local max = tonumber(ARGV[3])
redis.call('LPUSH', KEYS[2], ARGV[2])
redis.call('LTRIM', KEYS[2], 0, max - 1)
redis.call('ZREMRANGEBYRANK', KEYS[1], 0, -(max + 1))
if ARGV[4] ~= '' then
	redis.call('SADD', KEYS[3], ARGV[4])
end
return 1
`)

// Append stores r unless its id is among the last MaxRecords ids seen.
func (s *RedisStore) Append(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("memory: encode record: %w", err)
	}
	keys := []string{s.key(r.AgentID, "seen"), s.key(r.AgentID, "records"), s.key(r.AgentID, "authors"), s.key(r.AgentID, "seq")}
	if err := appendScript.Run(ctx, s.rdb, keys, r.ID, data, s.max, normalizeAuthor(r.Author)).Err(); err != nil {
		return fmt.Errorf("memory: append failed: %w", err)
	}
	return nil
}

// Recent returns up to n records for agentID, oldest first.
func (s *RedisStore) Recent(ctx context.Context, agentID string, n int) ([]Record, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	raw, err := s.rdb.LRange(ctx, s.key(agentID, "records"), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: lrange failed: %w", err)
	}

	out := make([]Record, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var r Record
		if err := json.Unmarshal([]byte(raw[i]), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// HasAuthor reports whether author has any record for agentID.
// Authors stay known after their records are trimmed.
func (s *RedisStore) HasAuthor(ctx context.Context, agentID, author string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.key(agentID, "authors"), normalizeAuthor(author)).Result()
	if err != nil {
		return false, fmt.Errorf("memory: sismember failed: %w", err)
	}
	return ok, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
