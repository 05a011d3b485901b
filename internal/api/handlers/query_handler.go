package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/internal/rag"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/sqlite"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Result, error)
}

type HistoryStore interface {
	GetQueryHistory(ctx context.Context, userID, sessionID string, limit int) ([]models.QueryRecord, error)
	StoreFeedback(ctx context.Context, feedback *models.Feedback) error
}

type QueryHandler struct {
	answerer Answerer
	history  HistoryStore
}

func NewQueryHandler(answerer Answerer, history HistoryStore) *QueryHandler {
	return &QueryHandler{
		answerer: answerer,
		history:  history,
	}
}

// bodyText prefers the text already cleaned by the validation middleware.
func bodyText(c *fiber.Ctx, raw string) string {
	if cleaned, ok := c.Locals("clean_text").(string); ok && cleaned != "" {
		return cleaned
	}
	return strings.TrimSpace(raw)
}

// Ask answers a single question without session history.
func (h *QueryHandler) Ask(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
		UserID   string `json:"userId"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.answerer.Answer(c.UserContext(), rag.Request{
		Question: bodyText(c, req.Question),
		UserID:   req.UserID,
	})
	if errors.Is(err, rag.ErrEmptyQuestion) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}
	if err != nil {
		logger.Error("Failed to answer question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to answer question",
		})
	}

	return c.JSON(result)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	userID := c.Query("userId")
	sessionID := c.Query("sessionId")
	if userID == "" && sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userId or sessionId is required",
		})
	}

	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}

	records, err := h.history.GetQueryHistory(c.UserContext(), userID, sessionID, limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}

func (h *QueryHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID string `json:"queryId"`
		Helpful *bool  `json:"helpful"`
		Comment string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.QueryID == "" || req.Helpful == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "queryId and helpful are required",
		})
	}

	err := h.history.StoreFeedback(c.UserContext(), &models.Feedback{
		QueryID: req.QueryID,
		Helpful: *req.Helpful,
		Comment: strings.TrimSpace(req.Comment),
	})
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown queryId",
		})
	}
	if err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	metrics.UserFeedback.WithLabelValues(strconv.FormatBool(*req.Helpful)).Inc()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "recorded",
	})
}
