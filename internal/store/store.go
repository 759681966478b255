// Package store defines persistence for canvases and nodes.
package store

import (
	"context"
	"errors"

	"github.com/contexttree/canvas-api/internal/model"
)

var (
	// ErrNotFound is returned when a canvas or node does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write races another write or an
	// insert collides with an existing key.
	ErrConflict = errors.New("conflict")
)

// Store persists canvases and their nodes.
//
// UpdateNode is a compare-and-swap on node.Revision: it fails with ErrConflict
// when the stored node changed since it was read.
type Store interface {
	CreateCanvas(ctx context.Context, canvas *model.Canvas) error
	GetCanvas(ctx context.Context, canvasID string) (*model.Canvas, error)
	ListCanvases(ctx context.Context, userID string) ([]model.Canvas, error)

	CreateNode(ctx context.Context, node *model.Node) error
	GetNode(ctx context.Context, canvasID, nodeID string) (*model.Node, error)
	ListNodes(ctx context.Context, canvasID string) ([]model.Node, error)
	UpdateNode(ctx context.Context, node *model.Node) error
	DeleteNode(ctx context.Context, canvasID, nodeID string) error

	Ping(ctx context.Context) error
}
