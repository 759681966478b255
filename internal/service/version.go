package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/versioning"
	"github.com/contexttree/canvas-api/pkg/logger"
	"github.com/contexttree/canvas-api/pkg/metrics"
)

// VersionService exposes a canvas's version history and branches.
type VersionService struct {
	canvases *CanvasService
	logger   *logger.Logger
}

// NewVersionService creates a version service.
func NewVersionService(canvases *CanvasService, log *logger.Logger) *VersionService {
	return &VersionService{canvases: canvases, logger: log}
}

func (s *VersionService) manager(ctx context.Context, userID, canvasID string) (*versioning.Manager, error) {
	ws, err := s.canvases.Workspace(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	return ws.Versions, nil
}

// Create snapshots the given graph onto the current branch.
func (s *VersionService) Create(ctx context.Context, userID, canvasID string, req *model.CreateVersionRequest) (*versioning.Version, error) {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	v, err := m.CreateVersion(req.Name, req.Description, req.Nodes, req.Edges, req.IsAutoSave)
	if err != nil {
		return nil, err
	}

	kind := "manual"
	if req.IsAutoSave {
		kind = "autosave"
	}
	metrics.VersionsCreated.WithLabelValues(kind).Inc()
	s.logger.Info("version created",
		zap.String("canvas_id", canvasID),
		zap.String("version_id", v.ID),
		zap.String("branch", v.BranchName),
	)
	return v, nil
}

// List lists the versions of a branch, the current one when branch is empty.
func (s *VersionService) List(ctx context.Context, userID, canvasID, branch string) (*model.VersionsResponse, error) {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = m.CurrentBranch()
	}
	versions, err := m.Versions(branch)
	if err != nil {
		return nil, err
	}
	return &model.VersionsResponse{
		Branch:           branch,
		CurrentVersionID: m.CurrentVersionID(),
		Versions:         versions,
	}, nil
}

// Get returns one version with its snapshot.
func (s *VersionService) Get(ctx context.Context, userID, canvasID, versionID string) (*versioning.Version, error) {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	return m.Version(versionID)
}

// Revert appends a copy of versionID to the current branch.
func (s *VersionService) Revert(ctx context.Context, userID, canvasID, versionID string) (*versioning.Version, error) {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	v, err := m.RevertToVersion(versionID)
	if err != nil {
		return nil, err
	}
	metrics.VersionsCreated.WithLabelValues("revert").Inc()
	return v, nil
}

// Compare diffs two versions.
func (s *VersionService) Compare(ctx context.Context, userID, canvasID, fromID, toID string) (*versioning.Diff, error) {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	return m.CompareVersions(fromID, toID)
}

// CreateBranch forks a branch without switching to it.
func (s *VersionService) CreateBranch(ctx context.Context, userID, canvasID string, req *model.CreateBranchRequest) (*versioning.Branch, error) {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	return m.CreateBranch(req.Name, req.Description, req.FromVersionID)
}

// Branches lists branches and the checked out one.
func (s *VersionService) Branches(ctx context.Context, userID, canvasID string) (*model.BranchesResponse, error) {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	return &model.BranchesResponse{Current: m.CurrentBranch(), Branches: m.Branches()}, nil
}

// SwitchBranch checks out a branch.
func (s *VersionService) SwitchBranch(ctx context.Context, userID, canvasID, branch string) (*versioning.Branch, error) {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	return m.SwitchBranch(branch)
}

// DeleteBranch deletes a branch other than main or the checked out one.
func (s *VersionService) DeleteBranch(ctx context.Context, userID, canvasID, branch string) error {
	m, err := s.manager(ctx, userID, canvasID)
	if err != nil {
		return err
	}
	return m.DeleteBranch(branch)
}
