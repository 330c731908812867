package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/askflow/internal/database"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StoreType represents the type of checkpoint backend
type StoreType string

const (
	StoreTypeFile     StoreType = "file"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDatabase StoreType = "database"
)

// Config selects and configures a checkpoint backend.
type Config struct {
	Type StoreType `json:"type" yaml:"type"`

	// Dir is the directory of file checkpoints.
	Dir string `json:"dir" yaml:"dir"`

	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`

	// Client is the shared Redis connection (required when Type is "redis").
	Client redis.UniversalClient `json:"-" yaml:"-"`

	Database database.Config `json:"database" yaml:"database"`
}

// NewStore creates a Store based on the configuration. The database
// backend opens and owns its own pool.
func NewStore(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Type {
	case StoreTypeFile, "":
		return NewFileStore(cfg.Dir)
	case StoreTypeRedis:
		if cfg.Client == nil {
			return nil, errors.New("redis checkpoint store requires a client")
		}
		return NewRedisStore(cfg.Client, cfg.KeyPrefix, cfg.TTL, logger), nil
	case StoreTypeDatabase:
		pool, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLStore(pool, logger)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint store type: %s", cfg.Type)
	}
}
