package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/language"
	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

const (
	DefaultThreshold = 0.7
	DefaultLimit     = 3
)

// DocumentStore is the vector search collaborator: the SQLite, pgvector and
// Milvus stores all implement it.
type DocumentStore interface {
	MatchDocuments(ctx context.Context, embedding []float32, threshold float64, count int, language string) ([]models.RetrievedDocument, error)
}

type Config struct {
	Threshold        float64
	Limit            int
	EmbeddingTimeout time.Duration
	SearchTimeout    time.Duration
}

// Retriever turns question text into ranked documents.
type Retriever struct {
	embedder llm.Embedder
	store    DocumentStore
	cfg      Config
}

func NewRetriever(embedder llm.Embedder, store DocumentStore, cfg Config) *Retriever {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg}
}

// Embed returns the question vector. Errors propagate unchanged.
func (r *Retriever) Embed(ctx context.Context, text string) ([]float32, error) {
	if r.cfg.EmbeddingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.EmbeddingTimeout)
		defer cancel()
	}

	embedding, err := r.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	return embedding, nil
}

// Search returns up to limit documents in lang scoring above the threshold,
// highest similarity first. No match is an empty slice, not an error.
func (r *Retriever) Search(ctx context.Context, embedding []float32, lang language.Code, limit int) ([]models.RetrievedDocument, error) {
	if limit <= 0 {
		limit = r.cfg.Limit
	}
	if r.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SearchTimeout)
		defer cancel()
	}

	docs, err := r.store.MatchDocuments(ctx, embedding, r.cfg.Threshold, limit, lang.String())
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	// Stores disagree on whether the threshold is inclusive; enforce it here.
	filtered := make([]models.RetrievedDocument, 0, len(docs))
	for _, d := range docs {
		if d.Similarity > r.cfg.Threshold {
			filtered = append(filtered, d)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	logger.Debug("Documents retrieved",
		zap.String("language", lang.String()),
		zap.Int("candidates", len(docs)),
		zap.Int("kept", len(filtered)),
	)
	return filtered, nil
}

func (r *Retriever) Threshold() float64 {
	return r.cfg.Threshold
}
