package retrieval

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
	"github.com/BarAvidan1996/eilam-sub000/pkg/utils"
)

// RemoteEmbeddingCache is a shared second tier, such as the Redis client.
type RemoteEmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

// CachedEmbedder memoises query embeddings in-process and, optionally, in a
// remote cache. Cache failures fall through to the wrapped embedder.
type CachedEmbedder struct {
	next   llm.Embedder
	model  string
	lru    *expirable.LRU[string, []float32]
	remote RemoteEmbeddingCache
}

func NewCachedEmbedder(next llm.Embedder, model string, size int, ttl time.Duration, remote RemoteEmbeddingCache) llm.Embedder {
	if size <= 0 && remote == nil {
		return next
	}
	c := &CachedEmbedder{next: next, model: model, remote: remote}
	if size > 0 && ttl > 0 {
		c.lru = expirable.NewLRU[string, []float32](size, nil, ttl)
	}
	return c
}

func (c *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := utils.HashKey(c.model, text)

	if c.lru != nil {
		if v, ok := c.lru.Get(key); ok {
			metrics.CacheHits.WithLabelValues("embedding_lru").Inc()
			return cloneEmbedding(v), nil
		}
	}
	if c.remote != nil {
		v, ok, err := c.remote.GetEmbedding(ctx, key)
		if err != nil {
			logger.Warn("Remote embedding cache lookup failed", zap.Error(err))
		} else if ok {
			metrics.CacheHits.WithLabelValues("embedding_remote").Inc()
			if c.lru != nil {
				c.lru.Add(key, cloneEmbedding(v))
			}
			return v, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err := c.next.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if c.lru != nil {
		c.lru.Add(key, cloneEmbedding(embedding))
	}
	if c.remote != nil {
		if err := c.remote.SetEmbedding(ctx, key, embedding); err != nil {
			logger.Warn("Remote embedding cache write failed", zap.Error(err))
		}
	}
	return embedding, nil
}

func (c *CachedEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.GenerateBatchEmbeddings(ctx, texts)
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
