package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/catalog/pkg/config"
	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/store/memcached"
	"github.com/nimburion/catalog/pkg/store/redis"
)

// NewCache opens the cache named by cache.type. It returns a nil Cache for "none".
func NewCache(cfg config.CacheConfig, log logger.Logger) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", config.CacheTypeNone:
		return nil, nil
	case config.CacheTypeRedis:
		return openCache(redis.NewAdapter(redis.Config{
			URL:              cfg.URL,
			MaxConns:         cfg.MaxConns,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	case config.CacheTypeMemcached:
		return openCache(memcached.NewAdapter(memcached.Config{
			Addresses:        cfg.Addresses,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	default:
		return nil, fmt.Errorf("unsupported cache.type %q (supported: none, redis, memcached)", cfg.Type)
	}
}

func openCache[C Cache](cache C, err error) (Cache, error) {
	if err != nil {
		return nil, err
	}
	return cache, nil
}
