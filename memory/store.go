package memory

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/askflow/types"
	"github.com/redis/go-redis/v9"
)

// Common errors
var (
	ErrNotFound     = errors.New("task memory not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// Store is the task memory repository injected into the orchestrator.
type Store interface {
	// Get returns a copy of the memory for taskID, or ErrNotFound.
	Get(ctx context.Context, taskID string) (*types.TaskMemory, error)

	// Put stores a full copy of mem, replacing any existing record.
	Put(ctx context.Context, mem *types.TaskMemory) error

	// AppendTrace appends entry to the task trace. The store assigns Seq
	// and returns the stored entry.
	AppendTrace(ctx context.Context, taskID string, entry types.TraceEntry) (types.TraceEntry, error)

	// Close releases backend resources.
	Close() error

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error
}

// StoreConfig is the configuration for task memory stores
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// TTL expires Redis records; zero keeps them forever.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// KeyPrefix namespaces Redis keys; "memory:" is appended.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// Client is the shared Redis connection (required when Type is "redis").
	// The store does not close it.
	Client redis.UniversalClient `json:"-" yaml:"-"`
}

func validateMemory(mem *types.TaskMemory) error {
	if mem == nil || mem.Meta.TaskID == "" {
		return ErrInvalidInput
	}
	return nil
}
