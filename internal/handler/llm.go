package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contexttree/canvas-api/internal/llm"
	"github.com/contexttree/canvas-api/internal/middleware"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/pkg/logger"
)

// LLMHandler handles the LLM proxy and prompt endpoints.
type LLMHandler struct {
	llm    *service.LLMService
	logger *logger.Logger
}

// NewLLMHandler creates a new LLM handler.
func NewLLMHandler(llmSvc *service.LLMService, log *logger.Logger) *LLMHandler {
	return &LLMHandler{llm: llmSvc, logger: log}
}

// Complete handles POST /api/llm
func (h *LLMHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req model.LLMRequest
	if err := decode(w, r, &req); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	resp, err := h.llm.Complete(r.Context(), middleware.GetUserID(r.Context()), &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, llm.ErrUnavailable):
		writeErrorDetails(w, http.StatusServiceUnavailable, "LLM provider unavailable", err.Error())
	case errors.Is(err, service.ErrUpstream):
		writeErrorDetails(w, http.StatusBadGateway, "LLM request failed", err.Error())
	default:
		respondError(w, r, h.logger, err, "failed to complete request")
	}
}

// Templates handles GET /api/prompts/templates
func (h *LLMHandler) Templates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": h.llm.Templates(),
	})
}

// Preview handles POST /api/canvases/{canvasId}/nodes/{nodeId}/prompt
func (h *LLMHandler) Preview(w http.ResponseWriter, r *http.Request) {
	canvasID, nodeID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "nodeId")
	if err := validIDs("canvas", canvasID, "node", nodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.PromptPreviewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.llm.Preview(r.Context(), middleware.GetUserID(r.Context()), canvasID, nodeID, &req)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to render prompt")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
