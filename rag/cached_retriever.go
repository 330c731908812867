package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BaSui01/askflow/internal/cache"
	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
)

// Retriever is the retrieval collaborator contract.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]types.Hit, error)
}

// CacheObserver receives cache hit/miss notifications.
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const retrievalCacheType = "retrieval"

// CachedRetriever 在 Redis 中缓存检索结果，使同一会话内的检索结果固定
type CachedRetriever struct {
	next     Retriever
	cache    *cache.Manager
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger
}

// NewCachedRetriever wraps next with a cache. ttl 为 0 时使用缓存默认值。
func NewCachedRetriever(next Retriever, c *cache.Manager, ttl time.Duration, logger *zap.Logger) *CachedRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRetriever{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "cached_retriever")),
	}
}

// WithObserver attaches a cache observer such as the metrics collector.
func (r *CachedRetriever) WithObserver(o CacheObserver) *CachedRetriever {
	r.observer = o
	return r
}

// Retrieve returns cached hits for (query, topK) when present; otherwise it
// calls the wrapped retriever and stores the result. Cache failures degrade
// to an uncached call.
func (r *CachedRetriever) Retrieve(ctx context.Context, query string, topK int) ([]types.Hit, error) {
	key := cacheKey(query, topK)

	var hits []types.Hit
	err := r.cache.GetJSON(ctx, key, &hits)
	switch {
	case err == nil:
		r.observe(true)
		if hits == nil {
			hits = []types.Hit{}
		}
		return hits, nil
	case cache.IsCacheMiss(err):
		r.observe(false)
	default:
		r.observe(false)
		r.logger.Warn("retrieval cache read failed", zap.Error(err))
	}

	hits, err = r.next.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []types.Hit{}
	}
	if err := r.cache.SetJSON(ctx, key, hits, r.ttl); err != nil {
		r.logger.Warn("retrieval cache write failed", zap.Error(err))
	}
	return hits, nil
}

func (r *CachedRetriever) observe(hit bool) {
	if r.observer == nil {
		return
	}
	if hit {
		r.observer.RecordCacheHit(retrievalCacheType)
	} else {
		r.observer.RecordCacheMiss(retrievalCacheType)
	}
}

func cacheKey(query string, topK int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", topK, query)))
	return "retrieval:" + hex.EncodeToString(sum[:])
}
