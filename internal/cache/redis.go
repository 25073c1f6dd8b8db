package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL is how long a cached document survives without writes.
const DefaultRedisTTL = 15 * time.Minute

const defaultKeyPrefix = "contract-ocr:doc:"

// RedisStore keeps entries as JSON strings with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, prefix: defaultKeyPrefix, ttl: ttl}
}

func (s *RedisStore) key(documentID string) string {
	return s.prefix + documentID
}

func (s *RedisStore) Get(ctx context.Context, documentID string) (*Entry, error) {
	return s.get(ctx, s.client, documentID)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, documentID string) (*Entry, error) {
	raw, err := c.Get(ctx, s.key(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return decodeEntry(raw)
}

func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	for {
		ok, err := s.swap(ctx, entry, nil)
		if err != nil || ok {
			return err
		}
	}
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, expected int64, entry *Entry) (bool, error) {
	return s.swap(ctx, entry, &expected)
}

// swap runs a WATCH/MULTI transaction on the entry key. A nil expected
// overwrites whatever is there; a concurrent writer makes it return false.
func (s *RedisStore) swap(ctx context.Context, entry *Entry, expected *int64) (bool, error) {
	key := s.key(entry.DocumentID)
	swapped := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var version int64
		cur, err := s.get(ctx, tx, entry.DocumentID)
		switch {
		case err == nil:
			version = cur.Version
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if expected != nil && version != *expected {
			return nil
		}

		next := entry.Clone()
		next.Version = version + 1
		next.StoredAt = time.Now().UTC()
		payload, err := encodeEntry(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		entry.Version, entry.StoredAt = next.Version, next.StoredAt
		swapped = true
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to write cache entry: %w", err)
	}
	return swapped, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeEntry(e *Entry) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return payload, nil
}

func decodeEntry(raw []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &e, nil
}
