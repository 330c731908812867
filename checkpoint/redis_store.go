package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore 每个任务一个字符串键的 Redis 检查点存储
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 检查点存储。client 的生命周期由调用方管理。
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "askflow:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix + "checkpoint:",
		ttl:    ttl,
		logger: logger.With(zap.String("store", "redis_checkpoint")),
	}
}

func (s *RedisStore) key(taskID string) string { return s.prefix + taskID }

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.TaskID == "" {
		return ErrInvalidTaskID
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(cp.TaskID), data, s.ttl).Err(); err != nil {
		return err
	}
	s.logger.Debug("checkpoint saved to redis",
		zap.String("task_id", cp.TaskID),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, taskID string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &cp, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	return s.client.Del(ctx, s.key(taskID)).Err()
}

// Close implements Store. The shared client stays open.
func (s *RedisStore) Close() error {
	return nil
}
