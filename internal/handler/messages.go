package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contexttree/canvas-api/internal/middleware"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/pkg/logger"
)

// MessageHandler handles node message endpoints.
type MessageHandler struct {
	messages *service.MessageService
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: log}
}

// List handles GET /api/canvases/{canvasId}/nodes/{nodeId}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	canvasID, nodeID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "nodeId")
	if err := validIDs("canvas", canvasID, "node", nodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.messages.History(r.Context(), middleware.GetUserID(r.Context()), canvasID, nodeID)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get messages")
		return
	}
	writeJSON(w, http.StatusOK, model.MessagesResponse{Messages: history})
}

// Append handles POST /api/canvases/{canvasId}/nodes/{nodeId}/messages
func (h *MessageHandler) Append(w http.ResponseWriter, r *http.Request) {
	canvasID, nodeID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "nodeId")
	if err := validIDs("canvas", canvasID, "node", nodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AppendMessageRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.messages.Append(r.Context(), middleware.GetUserID(r.Context()), canvasID, nodeID, req.Message())
	if err != nil {
		respondError(w, r, h.logger, err, "failed to persist message")
		return
	}
	writeJSON(w, http.StatusOK, model.MessagesResponse{Messages: history})
}
