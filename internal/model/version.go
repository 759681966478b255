package model

import "github.com/contexttree/canvas-api/internal/versioning"

// CreateVersionRequest snapshots the editor's graph.
type CreateVersionRequest struct {
	Name        string            `json:"name" validate:"required,max=256"`
	Description string            `json:"description,omitempty" validate:"max=2000"`
	Nodes       []versioning.Node `json:"nodes"`
	Edges       []versioning.Edge `json:"edges"`
	IsAutoSave  bool              `json:"isAutoSave,omitempty"`
}

// VersionsResponse lists versions of one branch.
type VersionsResponse struct {
	Branch           string               `json:"branch"`
	CurrentVersionID string               `json:"currentVersionId,omitempty"`
	Versions         []versioning.Version `json:"versions"`
}

// CreateBranchRequest forks a branch.
type CreateBranchRequest struct {
	Name          string `json:"name" validate:"required,nodeid"`
	Description   string `json:"description,omitempty" validate:"max=2000"`
	FromVersionID string `json:"fromVersionId,omitempty"`
}

// BranchesResponse lists branches.
type BranchesResponse struct {
	Current  string              `json:"current"`
	Branches []versioning.Branch `json:"branches"`
}
