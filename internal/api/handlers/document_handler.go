package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/audit"
	"github.com/yachtops/pms-backend/internal/auth"
	"github.com/yachtops/pms-backend/internal/ingestion"
	"github.com/yachtops/pms-backend/internal/metrics"
	"github.com/yachtops/pms-backend/pkg/logger"
)

// CacheInvalidator drops a yacht's cached search responses after its
// documents change. May be nil when caching is disabled.
type CacheInvalidator interface {
	InvalidateYacht(ctx context.Context, yachtID string) error
}

type DocumentHandler struct {
	processor *ingestion.Processor
	cache     CacheInvalidator
	audit     *audit.Writer
}

func NewDocumentHandler(processor *ingestion.Processor, cache CacheInvalidator, auditWriter *audit.Writer) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		cache:     cache,
		audit:     auditWriter,
	}
}

// HandleIngest ingests one manual or certificate under the caller's yacht.
func (h *DocumentHandler) HandleIngest(c *fiber.Ctx) error {
	identity, ok := auth.FromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if !identity.Role.AtLeast(auth.RoleEngineer) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient role",
		})
	}

	var req struct {
		Title   string `json:"title"`
		DocType string `json:"doc_type"`
		Content string `json:"content"`
		IsHTML  bool   `json:"is_html"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content is required",
		})
	}

	docID, chunks, err := h.processor.ProcessDocument(c.Context(), ingestion.Document{
		YachtID: identity.YachtID,
		Title:   req.Title,
		DocType: req.DocType,
		Content: req.Content,
		IsHTML:  req.IsHTML,
	})
	if err != nil {
		logger.Error("Failed to process document",
			zap.String("yacht_id", identity.YachtID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	metrics.DocumentsProcessed.Inc()

	if h.cache != nil {
		if err := h.cache.InvalidateYacht(c.Context(), identity.YachtID); err != nil {
			logger.Warn("Failed to invalidate search cache", zap.Error(err))
		}
	}

	h.audit.Record(audit.Entry{
		YachtID:     identity.YachtID,
		UserID:      identity.UserID,
		Action:      "ingest_document",
		ObjectTable: "search_index",
		ObjectID:    docID,
		Detail: map[string]interface{}{
			"title":    req.Title,
			"doc_type": req.DocType,
			"chunks":   chunks,
		},
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"doc_id": docID,
		"chunks": chunks,
	})
}
