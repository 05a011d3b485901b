package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/rag"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/sqlite"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRole     = errors.New("role must be user or assistant")
	ErrEmptyContent    = errors.New("message content is required")
)

type Store interface {
	InsertSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	InsertMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
}

type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Result, error)
}

// Service owns chat sessions. Messages are append-only.
type Service struct {
	store    Store
	answerer Answerer
	now      func() time.Time
}

func NewService(store Store, answerer Answerer) *Service {
	return &Service{store: store, answerer: answerer, now: time.Now}
}

func (s *Service) CreateSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	session := &models.ChatSession{
		ID:        uuid.New().String(),
		UserID:    strings.TrimSpace(userID),
		CreatedAt: s.now(),
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger.Debug("Chat session created", zap.String("session_id", session.ID))
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) AppendMessage(ctx context.Context, sessionID, content string, role models.MessageRole, sources []models.Source) (*models.ChatMessage, error) {
	if role != models.RoleUser && role != models.RoleAssistant {
		return nil, ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Sources:   sources,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Chat stores the user's message, answers it and stores the reply with its
// sources. A failed write of the reply is logged; the answer is still
// returned.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (*rag.Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, rag.ErrEmptyQuestion
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.AppendMessage(ctx, sessionID, message, models.RoleUser, nil); err != nil {
		return nil, err
	}

	result, err := s.answerer.Answer(ctx, rag.Request{
		Question:  message,
		SessionID: sessionID,
		UserID:    session.UserID,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.AppendMessage(ctx, sessionID, result.Answer, models.RoleAssistant, result.Sources); err != nil {
		logger.Warn("Failed to store assistant message",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	return result, nil
}
