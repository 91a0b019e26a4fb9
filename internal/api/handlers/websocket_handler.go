package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/auth"
	"github.com/yachtops/pms-backend/internal/pipeline"
	"github.com/yachtops/pms-backend/pkg/logger"
)

// WebSocketHandler streams pipeline stages for one search over a socket:
// extraction first, then intent, then the fused results, so the UI can
// render progressively.
type WebSocketHandler struct {
	orchestrator *pipeline.Orchestrator
}

func NewWebSocketHandler(orchestrator *pipeline.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator: orchestrator,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	identity, ok := c.Locals("identity").(auth.Identity)
	if !ok || identity.YachtID == "" {
		h.sendError(c, "Invalid credentials")
		c.Close()
		return
	}

	logger.Info("WebSocket connection established", zap.String("yacht_id", identity.YachtID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("yacht_id", identity.YachtID))
	}()

	for {
		var msg struct {
			Type  string `json:"type"`
			Query string `json:"query"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "search" || msg.Query == "" {
			continue
		}

		err = h.streamSearch(c, identity, msg.Query)
		if err != nil {
			logger.Error("Failed to stream search", zap.Error(err))
			h.sendError(c, "Failed to process search")
		}
	}
}

func (h *WebSocketHandler) streamSearch(c *websocket.Conn, identity auth.Identity, query string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h.sendStage(c, "status", "Processing query...")

	var writeErr error
	emit := func(stage string, payload interface{}) {
		if writeErr != nil {
			return
		}
		writeErr = c.WriteJSON(map[string]interface{}{
			"type":    stage,
			"payload": payload,
		})
	}

	_, err := h.orchestrator.SearchStaged(ctx, identity, query, emit)
	if err != nil {
		return err
	}
	return writeErr
}

func (h *WebSocketHandler) sendStage(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
