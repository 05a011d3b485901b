package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/ingestion"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

type Ingester interface {
	Ingest(ctx context.Context, req ingestion.Request) (*ingestion.Result, error)
}

type DocumentHandler struct {
	processor Ingester
}

func NewDocumentHandler(processor Ingester) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req ingestion.Request
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.processor.Ingest(c.UserContext(), req)
	if errors.Is(err, ingestion.ErrNoTitle) || errors.Is(err, ingestion.ErrNoContent) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		logger.Error("Failed to ingest document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}
