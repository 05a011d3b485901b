package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/rag"
	"github.com/BarAvidan1996/eilam-sub000/internal/session"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

type ChatService interface {
	CreateSession(ctx context.Context, userID string) (*models.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	Chat(ctx context.Context, sessionID, message string) (*rag.Result, error)
}

type ChatHandler struct {
	sessions ChatService
}

func NewChatHandler(sessions ChatService) *ChatHandler {
	return &ChatHandler{sessions: sessions}
}

func (h *ChatHandler) CreateSession(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"userId"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	s, err := h.sessions.CreateSession(c.UserContext(), req.UserID)
	if err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"sessionId": s.ID,
		"createdAt": s.CreatedAt,
	})
}

func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	messages, err := h.sessions.ListMessages(c.UserContext(), c.Params("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	if err != nil {
		logger.Error("Failed to list messages", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list messages",
		})
	}

	return c.JSON(fiber.Map{
		"messages": messages,
	})
}

func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"sessionId"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sessionId is required",
		})
	}

	result, err := h.sessions.Chat(c.UserContext(), req.SessionID, bodyText(c, req.Message))
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	case errors.Is(err, session.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	case err != nil:
		logger.Error("Failed to process chat message", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	return c.JSON(result)
}
