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

// ErrNotFound is returned by lookups of a single row that does not exist.
var ErrNotFound = errors.New("not found")

func (c *Client) InsertSession(ctx context.Context, session *models.ChatSession) error {
	var userID any
	if session.UserID != "" {
		userID = session.UserID
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, created_at) VALUES (?, ?, ?)`,
		session.ID,
		userID,
		session.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	var userID sql.NullString
	var createdAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &userID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.UserID = userID.String
	session.CreatedAt = time.Unix(0, createdAt)
	return &session, nil
}

func (c *Client) InsertMessage(ctx context.Context, msg *models.ChatMessage) error {
	var sourcesJSON any
	if len(msg.Sources) > 0 {
		data, err := json.Marshal(msg.Sources)
		if err != nil {
			return fmt.Errorf("failed to encode message sources: %w", err)
		}
		sourcesJSON = string(data)
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, sources, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.SessionID,
		string(msg.Role),
		msg.Content,
		sourcesJSON,
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages oldest first. Rows sharing a
// timestamp keep insertion order.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, sources, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var msg models.ChatMessage
		var role string
		var sourcesJSON sql.NullString
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &sourcesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &msg.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode message sources: %w", err)
			}
		}
		msg.Role = models.MessageRole(role)
		msg.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
