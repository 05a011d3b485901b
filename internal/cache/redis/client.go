package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
	"github.com/BarAvidan1996/eilam-sub000/pkg/utils"
)

const (
	answerPrefix    = "answer:"
	embeddingPrefix = "embedding:"
)

// Client is the Redis-backed answer cache. Each (question, language) pair
// maps to a list of JSON entries appended in creation order.
type Client struct {
	client       *redis.Client
	embeddingTTL time.Duration
}

type entry struct {
	Question  string          `json:"question"`
	Language  string          `json:"language"`
	Answer    string          `json:"answer"`
	Sources   []models.Source `json:"sources"`
	CreatedAt int64           `json:"created_at"`
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, embeddingTTL: 24 * time.Hour}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func answerKey(question, language string) string {
	return answerPrefix + utils.HashKey(question, language)
}

func (c *Client) GetCachedAnswer(ctx context.Context, question, language string) (*models.CachedAnswer, error) {
	data, err := c.client.LIndex(ctx, answerKey(question, language), -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached answer: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached answer: %w", err)
	}
	// A hash collision must not serve another question's answer.
	if e.Question != question || e.Language != language {
		return nil, nil
	}

	logger.Debug("Answer cache hit", zap.String("language", language))
	return &models.CachedAnswer{
		Question:  e.Question,
		Language:  e.Language,
		Answer:    e.Answer,
		Sources:   e.Sources,
		CreatedAt: time.Unix(0, e.CreatedAt),
	}, nil
}

func (c *Client) SaveAnswerToCache(ctx context.Context, question, language, answer string, sources []models.Source) error {
	if sources == nil {
		sources = []models.Source{}
	}
	data, err := json.Marshal(entry{
		Question:  question,
		Language:  language,
		Answer:    answer,
		Sources:   sources,
		CreatedAt: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cached answer: %w", err)
	}

	if err := c.client.RPush(ctx, answerKey(question, language), data).Err(); err != nil {
		return fmt.Errorf("failed to save cached answer: %w", err)
	}
	return nil
}

// CleanOldCache drops entries older than daysOld days from every answer list.
// Lists are append-only in creation order, so pruning trims a stale prefix.
func (c *Client) CleanOldCache(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(daysOld) * 24 * time.Hour).UnixNano()
	var removed int64

	iter := c.client.Scan(ctx, 0, answerPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		n, err := c.trimStale(ctx, key, cutoff)
		if err != nil {
			return removed, fmt.Errorf("failed to prune %s: %w", key, err)
		}
		removed += n
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Redis answer cache pruned", zap.Int64("removed", removed))
	return removed, nil
}

const maxPruneAttempts = 5

// trimStale removes the stale prefix of one list. The key is watched so a
// concurrent prune or append between the read and the trim restarts the read.
func (c *Client) trimStale(ctx context.Context, key string, cutoff int64) (int64, error) {
	var removed int64
	trim := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		removed = int64(firstFresh(raw, cutoff))
		if removed == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if int(removed) == len(raw) {
				pipe.Del(ctx, key)
			} else {
				pipe.LTrim(ctx, key, removed, -1)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxPruneAttempts; attempt++ {
		err := c.client.Watch(ctx, trim, key)
		if errors.Is(err, redis.TxFailedErr) {
			logger.Debug("Cache list changed during prune, rereading", zap.String("key", key))
			continue
		}
		if err != nil {
			return 0, err
		}
		return removed, nil
	}
	return 0, fmt.Errorf("list kept changing after %d attempts", maxPruneAttempts)
}

// firstFresh returns the index of the first entry created at or after cutoff,
// or len(raw) when every entry is stale. Undecodable entries before it count
// as stale.
func firstFresh(raw []string, cutoff int64) int {
	for i, item := range raw {
		var e entry
		if err := json.Unmarshal([]byte(item), &e); err == nil && e.CreatedAt >= cutoff {
			return i
		}
	}
	return len(raw)
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, embeddingPrefix+textHash, data, c.embeddingTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("text_hash", textHash))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingPrefix+textHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	return embedding, true, nil
}
