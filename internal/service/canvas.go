// Package service provides business logic for the canvas API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/internal/contextgraph"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/session"
	"github.com/contexttree/canvas-api/internal/store"
	"github.com/contexttree/canvas-api/pkg/logger"
	"github.com/contexttree/canvas-api/pkg/metrics"
)

var (
	ErrCanvasNotFound = errors.New("canvas not found")
	ErrNodeNotFound   = errors.New("node not found")
	ErrNodeExists     = errors.New("node already exists")
	ErrInvalidMessage = errors.New("invalid message")
)

// EventPublisher receives canvas events after changes are persisted.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.CanvasEvent) error
}

// CanvasService handles canvases, their nodes and the in-memory workspace
// attached to each canvas.
type CanvasService struct {
	store    store.Store
	registry *session.Registry
	events   EventPublisher
	retry    RetryPolicy
	logger   *logger.Logger
	now      func() time.Time
}

// NewCanvasService creates a canvas service. events may be nil.
func NewCanvasService(st store.Store, registry *session.Registry, events EventPublisher, retry RetryPolicy, log *logger.Logger) *CanvasService {
	return &CanvasService{
		store:    st,
		registry: registry,
		events:   events,
		retry:    retry,
		logger:   log,
		now:      time.Now,
	}
}

// CreateCanvas creates a canvas owned by userID.
func (s *CanvasService) CreateCanvas(ctx context.Context, userID string, req *model.CreateCanvasRequest) (*model.Canvas, error) {
	now := s.now().UTC()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled canvas"
	}

	canvas := &model.Canvas{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateCanvas(ctx, canvas); err != nil {
		return nil, fmt.Errorf("failed to create canvas: %w", err)
	}

	s.logger.Info("canvas created",
		zap.String("canvas_id", canvas.ID),
		zap.String("user_id", userID),
	)
	return canvas, nil
}

// ListCanvases lists the canvases owned by userID.
func (s *CanvasService) ListCanvases(ctx context.Context, userID string) (*model.ListCanvasesResponse, error) {
	canvases, err := s.store.ListCanvases(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list canvases: %w", err)
	}
	return &model.ListCanvasesResponse{Canvases: canvases, Total: len(canvases)}, nil
}

// GetCanvas returns a canvas if userID owns it. Canvases owned by someone
// else are reported as not found.
func (s *CanvasService) GetCanvas(ctx context.Context, userID, canvasID string) (*model.Canvas, error) {
	canvas, err := s.store.GetCanvas(ctx, canvasID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCanvasNotFound, canvasID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load canvas: %w", err)
	}
	if canvas.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrCanvasNotFound, canvasID)
	}
	return canvas, nil
}

// CreateNode adds a node to a canvas. Context nodes also seed the
// workspace's context content.
func (s *CanvasService) CreateNode(ctx context.Context, userID, canvasID string, req *model.CreateNodeRequest) (*model.Node, error) {
	ws, err := s.Workspace(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	node := &model.Node{
		ID:          req.ID,
		CanvasID:    canvasID,
		Type:        req.Type,
		Title:       req.Title,
		Content:     req.Content,
		ContextType: req.ContextType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if node.ID == "" {
		node.ID = uuid.Must(uuid.NewV7()).String()
	}
	if node.Type == model.NodeTypeContext && node.ContextType == "" {
		node.ContextType = contextgraph.ContextCustom
	}

	if err := s.store.CreateNode(ctx, node); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrNodeExists, node.ID)
		}
		return nil, fmt.Errorf("failed to create node: %w", err)
	}

	if node.Type == model.NodeTypeContext {
		ws.Context.SetNodeContent(node.ID, node.Content)
	}

	s.logger.WithNode(canvasID, node.ID).Debug("node created", zap.String("type", string(node.Type)))
	return node, nil
}

// GetNode returns a node of a canvas owned by userID.
func (s *CanvasService) GetNode(ctx context.Context, userID, canvasID, nodeID string) (*model.Node, error) {
	if _, err := s.GetCanvas(ctx, userID, canvasID); err != nil {
		return nil, err
	}
	return s.getNode(ctx, canvasID, nodeID)
}

func (s *CanvasService) getNode(ctx context.Context, canvasID, nodeID string) (*model.Node, error) {
	node, err := s.store.GetNode(ctx, canvasID, nodeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load node: %w", err)
	}
	return node, nil
}

// UpdateNodeContent replaces a node's content and refreshes the context
// content used when assembling prompts.
func (s *CanvasService) UpdateNodeContent(ctx context.Context, userID, canvasID, nodeID string, req *model.UpdateNodeContentRequest) (*model.Node, error) {
	ws, err := s.Workspace(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}

	node, err := s.mutateNode(ctx, canvasID, nodeID, func(n *model.Node) error {
		n.Content = req.Content
		if req.ContextType != "" {
			n.ContextType = req.ContextType
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if node.Type == model.NodeTypeContext {
		ws.Context.SetNodeContent(node.ID, node.Content)
	}
	return node, nil
}

// DeleteNode removes a node and every connection touching it.
func (s *CanvasService) DeleteNode(ctx context.Context, userID, canvasID, nodeID string) error {
	ws, err := s.Workspace(ctx, userID, canvasID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteNode(ctx, canvasID, nodeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}
		return fmt.Errorf("failed to delete node: %w", err)
	}
	ws.Context.RemoveNode(nodeID)

	s.publish(ctx, &model.CanvasEvent{
		Type:     model.EventTypeNodeDeleted,
		CanvasID: canvasID,
		NodeID:   nodeID,
		UserID:   userID,
	})
	return nil
}

// Workspace returns the in-memory workspace of a canvas owned by userID.
// On first use the context content is loaded from the canvas's context
// nodes. Connections are not persisted and start empty.
func (s *CanvasService) Workspace(ctx context.Context, userID, canvasID string) (*session.Workspace, error) {
	if _, err := s.GetCanvas(ctx, userID, canvasID); err != nil {
		return nil, err
	}

	ws := s.registry.Workspace(userID, canvasID)
	err := ws.Hydrate(func(w *session.Workspace) error {
		nodes, err := s.store.ListNodes(ctx, canvasID)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if n.Type == model.NodeTypeContext {
				w.Context.SetNodeContent(n.ID, n.Content)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return ws, nil
}

// publish sends an event. Failures are logged and never fail the caller,
// since the change is already persisted.
func (s *CanvasService) publish(ctx context.Context, event *model.CanvasEvent) {
	if s.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV7()).String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}

	status := "success"
	if err := s.events.PublishEvent(ctx, event); err != nil {
		status = "error"
		s.logger.WithNode(event.CanvasID, event.NodeID).Warn("failed to publish canvas event",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
	metrics.EventsPublished.WithLabelValues(string(event.Type), status).Inc()
}
