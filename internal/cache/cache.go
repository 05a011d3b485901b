package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
	"github.com/BarAvidan1996/eilam-sub000/pkg/utils"
)

// Store persists cached answers. Implemented by the SQLite and Redis clients.
type Store interface {
	GetCachedAnswer(ctx context.Context, question, language string) (*models.CachedAnswer, error)
	SaveAnswerToCache(ctx context.Context, question, language, answer string, sources []models.Source) error
	CleanOldCache(ctx context.Context, daysOld int) (int64, error)
}

// Service is the answer cache used by the pipeline. Reads and writes never
// fail: store errors become misses and dropped writes.
type Service struct {
	store Store
	front *expirable.LRU[string, models.CachedAnswer]
}

type Option func(*Service)

// WithLRU puts a bounded in-process layer in front of the store.
func WithLRU(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 && ttl > 0 {
			s.front = expirable.NewLRU[string, models.CachedAnswer](size, nil, ttl)
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, question, language string) *models.CachedAnswer {
	key := utils.HashKey(question, language)
	if s.front != nil {
		if hit, ok := s.front.Get(key); ok {
			metrics.CacheHits.WithLabelValues("lru").Inc()
			return cloneAnswer(hit)
		}
	}

	entry, err := s.store.GetCachedAnswer(ctx, question, language)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		logger.Warn("Answer cache lookup failed, treating as miss", zap.Error(err))
		return nil
	}
	if entry == nil {
		metrics.CacheMisses.WithLabelValues("store").Inc()
		return nil
	}

	metrics.CacheHits.WithLabelValues("store").Inc()
	if s.front != nil {
		s.front.Add(key, *entry)
	}
	return entry
}

func (s *Service) Put(ctx context.Context, question, language, answer string, sources []models.Source) {
	if err := s.store.SaveAnswerToCache(ctx, question, language, answer, sources); err != nil {
		metrics.CacheErrors.WithLabelValues("put").Inc()
		logger.Warn("Answer cache write dropped", zap.Error(err))
		return
	}
	if s.front != nil {
		s.front.Add(utils.HashKey(question, language), models.CachedAnswer{
			Question:  question,
			Language:  language,
			Answer:    answer,
			Sources:   append([]models.Source(nil), sources...),
			CreatedAt: time.Now(),
		})
	}
}

// Prune removes entries older than daysOld days. Unlike Get and Put it
// reports store errors, since it runs off the request path.
func (s *Service) Prune(ctx context.Context, daysOld int) (int64, error) {
	removed, err := s.store.CleanOldCache(ctx, daysOld)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("prune").Inc()
		return removed, err
	}
	if s.front != nil {
		s.front.Purge()
	}
	metrics.CachePruned.Add(float64(removed))
	logger.Info("Answer cache pruned", zap.Int("days_old", daysOld), zap.Int64("removed", removed))
	return removed, nil
}

func cloneAnswer(a models.CachedAnswer) *models.CachedAnswer {
	a.Sources = append([]models.Source(nil), a.Sources...)
	return &a
}
