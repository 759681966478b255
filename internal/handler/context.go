package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contexttree/canvas-api/internal/middleware"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/pkg/logger"
)

// ContextHandler handles context wiring endpoints.
type ContextHandler struct {
	contexts *service.ContextService
	logger   *logger.Logger
}

// NewContextHandler creates a new context handler.
func NewContextHandler(contexts *service.ContextService, log *logger.Logger) *ContextHandler {
	return &ContextHandler{contexts: contexts, logger: log}
}

// Connect handles POST /api/canvases/{canvasId}/connections
func (h *ContextHandler) Connect(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	if err := validIDs("canvas", canvasID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ConnectionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.contexts.Connect(r.Context(), middleware.GetUserID(r.Context()), canvasID, &req)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to connect nodes")
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// Disconnect handles DELETE /api/canvases/{canvasId}/connections/{contextNodeId}/{llmCallNodeId}
func (h *ContextHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	contextNodeID, llmCallNodeID := chi.URLParam(r, "contextNodeId"), chi.URLParam(r, "llmCallNodeId")
	if err := validIDs("canvas", canvasID, "node", contextNodeID, "node", llmCallNodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.contexts.Disconnect(r.Context(), middleware.GetUserID(r.Context()), canvasID, contextNodeID, llmCallNodeID); err != nil {
		respondError(w, r, h.logger, err, "failed to disconnect nodes")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connections handles GET /api/canvases/{canvasId}/nodes/{nodeId}/connections
func (h *ContextHandler) Connections(w http.ResponseWriter, r *http.Request) {
	canvasID, nodeID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "nodeId")
	if err := validIDs("canvas", canvasID, "node", nodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conns, err := h.contexts.Connections(r.Context(), middleware.GetUserID(r.Context()), canvasID, nodeID)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to list connections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"connections": conns})
}

// Assemble handles GET /api/canvases/{canvasId}/nodes/{nodeId}/context
func (h *ContextHandler) Assemble(w http.ResponseWriter, r *http.Request) {
	canvasID, nodeID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "nodeId")
	if err := validIDs("canvas", canvasID, "node", nodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bundle, err := h.contexts.Assemble(r.Context(), middleware.GetUserID(r.Context()), canvasID, nodeID)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to assemble context")
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}
