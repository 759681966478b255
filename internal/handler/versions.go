package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contexttree/canvas-api/internal/middleware"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/pkg/logger"
)

// VersionHandler handles version and branch endpoints.
type VersionHandler struct {
	versions *service.VersionService
	logger   *logger.Logger
}

// NewVersionHandler creates a new version handler.
func NewVersionHandler(versions *service.VersionService, log *logger.Logger) *VersionHandler {
	return &VersionHandler{versions: versions, logger: log}
}

// Create handles POST /api/canvases/{canvasId}/versions
func (h *VersionHandler) Create(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	if err := validIDs("canvas", canvasID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateVersionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.versions.Create(r.Context(), middleware.GetUserID(r.Context()), canvasID, &req)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to create version")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// List handles GET /api/canvases/{canvasId}/versions?branch=
func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	if err := validIDs("canvas", canvasID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.versions.List(r.Context(), middleware.GetUserID(r.Context()), canvasID, r.URL.Query().Get("branch"))
	if err != nil {
		respondError(w, r, h.logger, err, "failed to list versions")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/canvases/{canvasId}/versions/{versionId}
func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	canvasID, versionID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "versionId")
	if err := validIDs("canvas", canvasID, "version", versionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.versions.Get(r.Context(), middleware.GetUserID(r.Context()), canvasID, versionID)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get version")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Revert handles POST /api/canvases/{canvasId}/versions/{versionId}/revert
func (h *VersionHandler) Revert(w http.ResponseWriter, r *http.Request) {
	canvasID, versionID := chi.URLParam(r, "canvasId"), chi.URLParam(r, "versionId")
	if err := validIDs("canvas", canvasID, "version", versionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.versions.Revert(r.Context(), middleware.GetUserID(r.Context()), canvasID, versionID)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to revert version")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// Compare handles GET /api/canvases/{canvasId}/versions/compare?from=&to=
func (h *VersionHandler) Compare(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if err := validIDs("canvas", canvasID, "version", from, "version", to); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	diff, err := h.versions.Compare(r.Context(), middleware.GetUserID(r.Context()), canvasID, from, to)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to compare versions")
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// CreateBranch handles POST /api/canvases/{canvasId}/branches
func (h *VersionHandler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	if err := validIDs("canvas", canvasID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateBranchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.versions.CreateBranch(r.Context(), middleware.GetUserID(r.Context()), canvasID, &req)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to create branch")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Branches handles GET /api/canvases/{canvasId}/branches
func (h *VersionHandler) Branches(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasId")
	if err := validIDs("canvas", canvasID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.versions.Branches(r.Context(), middleware.GetUserID(r.Context()), canvasID)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to list branches")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SwitchBranch handles POST /api/canvases/{canvasId}/branches/{branch}/switch
func (h *VersionHandler) SwitchBranch(w http.ResponseWriter, r *http.Request) {
	canvasID, branch := chi.URLParam(r, "canvasId"), chi.URLParam(r, "branch")
	if err := validIDs("canvas", canvasID, "branch", branch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.versions.SwitchBranch(r.Context(), middleware.GetUserID(r.Context()), canvasID, branch)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to switch branch")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteBranch handles DELETE /api/canvases/{canvasId}/branches/{branch}
func (h *VersionHandler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	canvasID, branch := chi.URLParam(r, "canvasId"), chi.URLParam(r, "branch")
	if err := validIDs("canvas", canvasID, "branch", branch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.versions.DeleteBranch(r.Context(), middleware.GetUserID(r.Context()), canvasID, branch); err != nil {
		respondError(w, r, h.logger, err, "failed to delete branch")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
