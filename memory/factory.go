package memory

import (
	"errors"
	"fmt"
)

// NewStore creates a Store based on the configuration
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewInMemoryStore(), nil
	case StoreTypeRedis:
		if config.Client == nil {
			return nil, errors.New("redis memory store requires a client")
		}
		return NewRedisStore(config.Client, config.KeyPrefix, config.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported memory store type: %s", config.Type)
	}
}

