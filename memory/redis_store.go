package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/askflow/types"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-based implementation of Store.
// The memory document lives in a string key; the trace lives in a list so
// appends never rewrite the document.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore wraps an existing client. The caller keeps ownership of
// client.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "askflow:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "memory:",
		ttl:       ttl,
	}
}

func (s *RedisStore) docKey(taskID string) string   { return s.keyPrefix + "doc:" + taskID }
func (s *RedisStore) traceKey(taskID string) string { return s.keyPrefix + "trace:" + taskID }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, taskID string) (*types.TaskMemory, error) {
	pipe := s.client.Pipeline()
	docCmd := pipe.Get(ctx, s.docKey(taskID))
	traceCmd := pipe.LRange(ctx, s.traceKey(taskID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load task memory: %w", err)
	}

	data, err := docCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task memory: %w", err)
	}

	var mem types.TaskMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		return nil, fmt.Errorf("failed to decode task memory: %w", err)
	}

	raw := traceCmd.Val()
	if len(raw) > 0 {
		mem.Trace = make([]types.TraceEntry, 0, len(raw))
		for _, item := range raw {
			var entry types.TraceEntry
			if err := json.Unmarshal([]byte(item), &entry); err != nil {
				return nil, fmt.Errorf("failed to decode trace entry: %w", err)
			}
			mem.Trace = append(mem.Trace, entry)
		}
	}
	return &mem, nil
}

// Put implements Store. The stored trace list is replaced by mem.Trace.
func (s *RedisStore) Put(ctx context.Context, mem *types.TaskMemory) error {
	if err := validateMemory(mem); err != nil {
		return err
	}
	taskID := mem.Meta.TaskID

	doc := *mem
	doc.Trace = nil
	data, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode task memory: %w", err)
	}

	entries := make([]any, 0, len(mem.Trace))
	for _, e := range mem.Trace {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode trace entry: %w", err)
		}
		entries = append(entries, b)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(taskID), data, s.ttl)
		pipe.Del(ctx, s.traceKey(taskID))
		if len(entries) > 0 {
			pipe.RPush(ctx, s.traceKey(taskID), entries...)
			if s.ttl > 0 {
				pipe.Expire(ctx, s.traceKey(taskID), s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save task memory: %w", err)
	}
	return nil
}

// AppendTrace implements Store.
func (s *RedisStore) AppendTrace(ctx context.Context, taskID string, entry types.TraceEntry) (types.TraceEntry, error) {
	docKey, traceKey := s.docKey(taskID), s.traceKey(taskID)

	var stored types.TraceEntry
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, docKey).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		n, err := tx.LLen(ctx, traceKey).Result()
		if err != nil {
			return err
		}

		stored = entry.Clone()
		stored.Seq = int(n) + 1
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, traceKey, data)
			if s.ttl > 0 {
				pipe.Expire(ctx, traceKey, s.ttl)
			}
			return nil
		})
		return err
	}, docKey, traceKey)
	if errors.Is(err, ErrNotFound) {
		return types.TraceEntry{}, ErrNotFound
	}
	if err != nil {
		return types.TraceEntry{}, fmt.Errorf("failed to append trace entry: %w", err)
	}
	return stored, nil
}

// Close implements Store. Clients passed in by the caller are left open.
func (s *RedisStore) Close() error {
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
