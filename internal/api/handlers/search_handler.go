package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/auth"
	"github.com/yachtops/pms-backend/internal/pipeline"
	"github.com/yachtops/pms-backend/pkg/logger"
)

type SearchHandler struct {
	orchestrator *pipeline.Orchestrator
}

func NewSearchHandler(orchestrator *pipeline.Orchestrator) *SearchHandler {
	return &SearchHandler{
		orchestrator: orchestrator,
	}
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	identity, ok := auth.FromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	var req struct {
		Query string `json:"query"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}
	if len(req.Query) > 2000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query too long",
		})
	}

	response, err := h.orchestrator.Search(c.Context(), identity, req.Query)
	if err != nil {
		logger.Error("Failed to process search",
			zap.String("yacht_id", identity.YachtID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process search",
		})
	}

	return c.JSON(response)
}
