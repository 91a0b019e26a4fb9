package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/audit"
	"github.com/yachtops/pms-backend/internal/auth"
	"github.com/yachtops/pms-backend/internal/idempotency"
	"github.com/yachtops/pms-backend/internal/metrics"
	"github.com/yachtops/pms-backend/internal/ownership"
	"github.com/yachtops/pms-backend/internal/storage/models"
	"github.com/yachtops/pms-backend/internal/storage/postgres"
	"github.com/yachtops/pms-backend/pkg/logger"
	"github.com/yachtops/pms-backend/pkg/utils"
)

const actionCreateWorkOrder = "create_work_order"

type WorkOrderHandler struct {
	store     *postgres.TenantStore
	idem      *idempotency.Service
	ownership *ownership.Validator
	audit     *audit.Writer
}

func NewWorkOrderHandler(store *postgres.TenantStore, idem *idempotency.Service, owner *ownership.Validator, auditWriter *audit.Writer) *WorkOrderHandler {
	return &WorkOrderHandler{
		store:     store,
		idem:      idem,
		ownership: owner,
		audit:     auditWriter,
	}
}

type createWorkOrderRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	EquipmentID string `json:"equipment_id"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
}

// HandleCreate creates a work order. The call is idempotent under the
// X-Idempotency-Key header: replays return the original response, and the
// same key with a different body is a conflict.
func (h *WorkOrderHandler) HandleCreate(c *fiber.Ctx) error {
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

	idemKey := c.Get("X-Idempotency-Key")
	if idemKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "X-Idempotency-Key header is required",
		})
	}

	var req createWorkOrderRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title is required",
		})
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "due_date must be RFC3339",
			})
		}
		dueDate = &parsed
	}

	requestHash := utils.HashRequestBody(map[string]interface{}{
		"title":        req.Title,
		"description":  req.Description,
		"equipment_id": req.EquipmentID,
		"priority":     req.Priority,
		"due_date":     req.DueDate,
	})

	check, err := h.idem.Check(c.Context(), idemKey, identity.YachtID, actionCreateWorkOrder, requestHash)
	if err != nil {
		switch {
		case errors.Is(err, idempotency.ErrConflict):
			metrics.IdempotencyConflicts.Inc()
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Idempotency key reused with a different request",
			})
		case errors.Is(err, idempotency.ErrInFlight):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Request with this idempotency key is still processing",
			})
		default:
			logger.Error("Idempotency check failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create work order",
			})
		}
	}
	if check.IsReplay {
		metrics.IdempotencyReplays.Inc()
		c.Set("X-Idempotency-Replay", "true")
		return c.Status(check.ResponseStatus).Send(check.ResponseBody)
	}

	equipmentName := ""
	if req.EquipmentID != "" {
		// Equipment outside the caller's yacht reads as not found, so IDs
		// cannot be probed across tenants.
		if err := h.ownership.Validate(c.Context(), "pms_equipment", req.EquipmentID, identity.YachtID); err != nil {
			if errors.Is(err, ownership.ErrNotFound) {
				metrics.OwnershipRejections.Inc()
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Equipment not found",
				})
			}
			logger.Error("Ownership check failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create work order",
			})
		}

		name, err := h.store.EquipmentName(c.Context(), req.EquipmentID, identity.YachtID)
		if err != nil {
			logger.Warn("Failed to resolve equipment name", zap.Error(err))
		} else {
			equipmentName = name
		}
	}

	if err := h.idem.Begin(c.Context(), idemKey, identity.YachtID, actionCreateWorkOrder, requestHash); err != nil {
		logger.Error("Failed to begin idempotent request", zap.Error(err))
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Request with this idempotency key is still processing",
		})
	}

	now := time.Now().UTC()
	wo := &models.WorkOrder{
		ID:            uuid.NewString(),
		YachtID:       identity.YachtID,
		Number:        "WO-" + now.Format("20060102") + "-" + wo8(uuid.NewString()),
		Title:         req.Title,
		Description:   req.Description,
		EquipmentID:   req.EquipmentID,
		EquipmentName: equipmentName,
		Status:        "open",
		Priority:      defaultPriority(req.Priority),
		DueDate:       dueDate,
		CreatedBy:     identity.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.store.InsertWorkOrder(c.Context(), wo); err != nil {
		logger.Error("Failed to insert work order", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create work order",
		})
	}

	metrics.WorkOrdersCreated.Inc()

	h.audit.Record(audit.Entry{
		YachtID:     identity.YachtID,
		UserID:      identity.UserID,
		Action:      actionCreateWorkOrder,
		ObjectTable: "pms_work_orders",
		ObjectID:    wo.ID,
		Detail: map[string]interface{}{
			"number":       wo.Number,
			"title":        wo.Title,
			"equipment_id": wo.EquipmentID,
			"priority":     wo.Priority,
		},
	})

	body := fiber.Map{
		"id":             wo.ID,
		"number":         wo.Number,
		"title":          wo.Title,
		"status":         wo.Status,
		"priority":       wo.Priority,
		"equipment_id":   wo.EquipmentID,
		"equipment_name": wo.EquipmentName,
		"created_at":     wo.CreatedAt,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		logger.Error("Failed to marshal response", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create work order",
		})
	}

	if err := h.idem.Complete(c.Context(), idemKey, identity.YachtID, actionCreateWorkOrder, fiber.StatusCreated, payload); err != nil {
		logger.Warn("Failed to complete idempotency record", zap.Error(err))
	}

	c.Set("Content-Type", "application/json")
	return c.Status(fiber.StatusCreated).Send(payload)
}

func defaultPriority(p string) string {
	switch p {
	case "low", "medium", "high", "critical":
		return p
	default:
		return "medium"
	}
}

// wo8 shortens a UUID into the human-facing work order number suffix.
func wo8(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
