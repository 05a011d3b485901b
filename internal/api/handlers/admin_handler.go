package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

type CachePruner interface {
	Prune(ctx context.Context, daysOld int) (int64, error)
}

type AdminHandler struct {
	cache       CachePruner
	defaultDays int
}

func NewAdminHandler(cache CachePruner, defaultDays int) *AdminHandler {
	return &AdminHandler{cache: cache, defaultDays: defaultDays}
}

// PruneCache removes cached answers older than ?days= (default from config).
func (h *AdminHandler) PruneCache(c *fiber.Ctx) error {
	days := c.QueryInt("days", h.defaultDays)
	if days < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "days must not be negative",
		})
	}

	removed, err := h.cache.Prune(c.UserContext(), days)
	if err != nil {
		logger.Error("Failed to prune cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to prune cache",
		})
	}

	return c.JSON(fiber.Map{
		"removed": removed,
		"daysOld": days,
	})
}
