package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
)

// GetCachedAnswer returns the newest entry for the exact (question, language)
// pair, or nil when there is none.
func (c *Client) GetCachedAnswer(ctx context.Context, question, language string) (*models.CachedAnswer, error) {
	query := `
		SELECT id, question, language, answer, sources, created_at
		FROM cached_answers
		WHERE question = ? AND language = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var entry models.CachedAnswer
	var sourcesJSON string
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, question, language).Scan(
		&entry.ID,
		&entry.Question,
		&entry.Language,
		&entry.Answer,
		&sourcesJSON,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached answer: %w", err)
	}

	if err := json.Unmarshal([]byte(sourcesJSON), &entry.Sources); err != nil {
		return nil, fmt.Errorf("failed to decode cached sources: %w", err)
	}
	entry.CreatedAt = time.Unix(0, createdAt)

	return &entry, nil
}

// SaveAnswerToCache always appends; duplicates are resolved on read.
func (c *Client) SaveAnswerToCache(ctx context.Context, question, language, answer string, sources []models.Source) error {
	if sources == nil {
		sources = []models.Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO cached_answers (question, language, answer, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
		question,
		language,
		answer,
		string(sourcesJSON),
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cached answer: %w", err)
	}

	return nil
}

// CleanOldCache deletes entries created more than daysOld days ago.
func (c *Client) CleanOldCache(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(daysOld) * 24 * time.Hour).UnixNano()

	res, err := c.db.ExecContext(ctx, `DELETE FROM cached_answers WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean cache: %w", err)
	}

	return res.RowsAffected()
}
