package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

// InsertQueryRecord stores a pipeline run together with its sources.
func (c *Client) InsertQueryRecord(ctx context.Context, record *models.QueryRecord, sources []models.Source) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO query_history (id, session_id, user_id, query_text, language, response, terminal,
			documents_found, used_fallback, used_web_search, used_cache, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.SessionID,
		record.UserID,
		record.QueryText,
		record.Language,
		record.Response,
		record.Terminal,
		record.DocumentsFound,
		boolToInt(record.UsedFallback),
		boolToInt(record.UsedWebSearch),
		boolToInt(record.UsedCache),
		record.LatencyMS,
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	for _, source := range sources {
		url := source.URL
		if url == "" {
			url = source.StoragePath
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO query_sources (query_id, source_type, title, source_url, similarity) VALUES (?, ?, ?, ?, ?)`,
			record.ID,
			string(source.SourceType),
			source.Title,
			url,
			source.Similarity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert query source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("terminal", record.Terminal),
	)

	return nil
}

// GetQueryHistory lists the newest runs for a user, or for a session when
// userID is empty.
func (c *Client) GetQueryHistory(ctx context.Context, userID, sessionID string, limit int) ([]models.QueryRecord, error) {
	column, value := "user_id", userID
	if userID == "" {
		column, value = "session_id", sessionID
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, query_text, language, response, terminal, documents_found,
			used_fallback, used_web_search, used_cache, latency_ms, created_at
		FROM query_history
		WHERE %s = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, column), value, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	records := make([]models.QueryRecord, 0)
	for rows.Next() {
		var r models.QueryRecord
		var usedFallback, usedWebSearch, usedCache int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.QueryText, &r.Language, &r.Response, &r.Terminal, &r.DocumentsFound,
			&usedFallback, &usedWebSearch, &usedCache, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.UserID = userID
		r.SessionID = sessionID
		r.UsedFallback = usedFallback == 1
		r.UsedWebSearch = usedWebSearch == 1
		r.UsedCache = usedCache == 1
		r.CreatedAt = time.Unix(0, createdAt)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) StoreFeedback(ctx context.Context, feedback *models.Feedback) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO feedback (query_id, helpful, comment, created_at) VALUES (?, ?, ?, ?)`,
		feedback.QueryID,
		boolToInt(feedback.Helpful),
		feedback.Comment,
		time.Now().UnixNano(),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("query_id", feedback.QueryID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
