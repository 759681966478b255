package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contexttree/canvas-api/internal/middleware"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/pkg/logger"
)

// CanvasHandler handles canvas and node endpoints.
type CanvasHandler struct {
	canvases *service.CanvasService
	logger   *logger.Logger
}

// NewCanvasHandler creates a new canvas handler.
func NewCanvasHandler(canvases *service.CanvasService, log *logger.Logger) *CanvasHandler {
	return &CanvasHandler{canvases: canvases, logger: log}
}

// Create handles POST /api/canvases
func (h *CanvasHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCanvasRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	canvas, err := h.canvases.CreateCanvas(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to create canvas")
		return
	}
	writeJSON(w, http.StatusCreated, canvas)
}

// List handles GET /api/canvases
func (h *CanvasHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.canvases.ListCanvases(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err, "failed to list canvases")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/canvases/{canvasId}
func (h *CanvasHandler) Get(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	if err := validIDs("canvas", canvasID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	canvas, err := h.canvases.GetCanvas(r.Context(), middleware.GetUserID(r.Context()), canvasID)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get canvas")
		return
	}
	writeJSON(w, http.StatusOK, canvas)
}

// CreateNode handles POST /api/canvases/{canvasId}/nodes
func (h *CanvasHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	if err := validIDs("canvas", canvasID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateNodeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	node, err := h.canvases.CreateNode(r.Context(), middleware.GetUserID(r.Context()), canvasID, &req)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to create node")
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// GetNode handles GET /api/canvases/{canvasId}/nodes/{nodeId}
func (h *CanvasHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	canvasID, nodeID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "nodeId")
	if err := validIDs("canvas", canvasID, "node", nodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	node, err := h.canvases.GetNode(r.Context(), middleware.GetUserID(r.Context()), canvasID, nodeID)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get node")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// UpdateNodeContent handles PUT /api/canvases/{canvasId}/nodes/{nodeId}/content
func (h *CanvasHandler) UpdateNodeContent(w http.ResponseWriter, r *http.Request) {
	canvasID, nodeID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "nodeId")
	if err := validIDs("canvas", canvasID, "node", nodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateNodeContentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	node, err := h.canvases.UpdateNodeContent(r.Context(), middleware.GetUserID(r.Context()), canvasID, nodeID, &req)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to update node")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// DeleteNode handles DELETE /api/canvases/{canvasId}/nodes/{nodeId}
func (h *CanvasHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	canvasID, nodeID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "nodeId")
	if err := validIDs("canvas", canvasID, "node", nodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.canvases.DeleteNode(r.Context(), middleware.GetUserID(r.Context()), canvasID, nodeID); err != nil {
		respondError(w, r, h.logger, err, "failed to delete node")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
