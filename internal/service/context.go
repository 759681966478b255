package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/contexttree/canvas-api/internal/contextgraph"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/pkg/metrics"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrInvalidConnection  = errors.New("invalid connection")
)

// ContextService wires context nodes to LLM-call nodes.
type ContextService struct {
	canvases *CanvasService
}

// NewContextService creates a context service.
func NewContextService(canvases *CanvasService) *ContextService {
	return &ContextService{canvases: canvases}
}

// Connect wires a context node to an LLM-call node, replacing any existing
// connection between the two. The connection's type defaults to the context
// node's type.
func (s *ContextService) Connect(ctx context.Context, userID, canvasID string, req *model.ConnectionRequest) (contextgraph.Connection, error) {
	ws, err := s.canvases.Workspace(ctx, userID, canvasID)
	if err != nil {
		return contextgraph.Connection{}, err
	}
	if req.ContextNodeID == req.LLMCallNodeID {
		return contextgraph.Connection{}, fmt.Errorf("%w: a node cannot feed itself", ErrInvalidConnection)
	}

	source, err := s.canvases.getNode(ctx, canvasID, req.ContextNodeID)
	if err != nil {
		return contextgraph.Connection{}, err
	}
	if source.Type != model.NodeTypeContext {
		return contextgraph.Connection{}, fmt.Errorf("%w: %s is not a context node", ErrInvalidConnection, source.ID)
	}
	target, err := s.canvases.getNode(ctx, canvasID, req.LLMCallNodeID)
	if err != nil {
		return contextgraph.Connection{}, err
	}
	if target.Type == model.NodeTypeContext {
		return contextgraph.Connection{}, fmt.Errorf("%w: %s cannot receive context", ErrInvalidConnection, target.ID)
	}

	contextType := req.ContextType
	if contextType == "" {
		contextType = source.ContextType
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	return ws.Context.AddConnection(contextgraph.Connection{
		ContextNodeID: source.ID,
		LLMCallNodeID: target.ID,
		ContextType:   contextType,
		Priority:      req.Priority,
		IsActive:      active,
	}), nil
}

// Disconnect removes the connection between two nodes.
func (s *ContextService) Disconnect(ctx context.Context, userID, canvasID, contextNodeID, llmCallNodeID string) error {
	ws, err := s.canvases.Workspace(ctx, userID, canvasID)
	if err != nil {
		return err
	}
	if !ws.Context.RemoveConnection(contextNodeID, llmCallNodeID) {
		return fmt.Errorf("%w: %s -> %s", ErrConnectionNotFound, contextNodeID, llmCallNodeID)
	}
	return nil
}

// Connections lists the connections feeding an LLM-call node, by priority.
func (s *ContextService) Connections(ctx context.Context, userID, canvasID, nodeID string) ([]contextgraph.Connection, error) {
	ws, err := s.canvases.Workspace(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	conns := ws.Context.Connections(nodeID)
	if conns == nil {
		conns = []contextgraph.Connection{}
	}
	return conns, nil
}

// Assemble builds the context bundle for an LLM-call node.
func (s *ContextService) Assemble(ctx context.Context, userID, canvasID, nodeID string) (contextgraph.AssembledContext, error) {
	ws, err := s.canvases.Workspace(ctx, userID, canvasID)
	if err != nil {
		return contextgraph.AssembledContext{}, err
	}
	return assemble(ws.Context, nodeID), nil
}

func assemble(m *contextgraph.Manager, nodeID string) contextgraph.AssembledContext {
	bundle := m.AssembleContext(nodeID)
	metrics.ContextAssemblies.WithLabelValues(strconv.FormatBool(bundle.Empty())).Inc()
	return bundle
}
