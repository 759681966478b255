package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/turns"
	"github.com/contexttree/canvas-api/pkg/logger"
	"github.com/contexttree/canvas-api/pkg/metrics"
	"github.com/contexttree/canvas-api/pkg/tracing"
)

// MessageService appends messages to node turns.
type MessageService struct {
	canvases   *CanvasService
	normalizer *turns.Normalizer
	logger     *logger.Logger
}

// NewMessageService creates a new message service. A nil normalizer uses
// the default one.
func NewMessageService(canvases *CanvasService, normalizer *turns.Normalizer, log *logger.Logger) *MessageService {
	if normalizer == nil {
		normalizer = turns.NewNormalizer()
	}
	return &MessageService{
		canvases:   canvases,
		normalizer: normalizer,
		logger:     log,
	}
}

// Append folds msg into the node's turns and persists the result. The
// updated turns are returned.
func (s *MessageService) Append(ctx context.Context, userID, canvasID, nodeID string, msg turns.Message) (turns.History, error) {
	return s.appendAll(ctx, "MessageService.Append", userID, canvasID, nodeID, []turns.Message{msg})
}

// AppendExchange stores a user message and its reply as one write, so the
// reply lands on that message's turn and a failed write stores neither.
func (s *MessageService) AppendExchange(ctx context.Context, userID, canvasID, nodeID, question, reply string) (turns.History, error) {
	return s.appendAll(ctx, "MessageService.AppendExchange", userID, canvasID, nodeID, []turns.Message{
		{Role: turns.RoleUser, Content: question},
		{Role: turns.RoleAssistant, Content: reply},
	})
}

func (s *MessageService) appendAll(ctx context.Context, spanName, userID, canvasID, nodeID string, msgs []turns.Message) (turns.History, error) {
	for _, msg := range msgs {
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("%w: unsupported role %q", ErrInvalidMessage, msg.Role)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return nil, fmt.Errorf("%w: content is required", ErrInvalidMessage)
		}
	}
	last := msgs[len(msgs)-1]

	ctx, span := tracing.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(
		attribute.String("canvas.id", canvasID),
		attribute.String("node.id", nodeID),
		attribute.String("message.role", string(last.Role)),
		attribute.Int("message.count", len(msgs)),
	)

	if _, err := s.canvases.GetCanvas(ctx, userID, canvasID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	node, err := s.canvases.mutateNode(ctx, canvasID, nodeID, func(n *model.Node) error {
		history := n.Messages
		for _, msg := range msgs {
			history = s.normalizer.Append(history, msg)
		}
		n.Messages = history
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for _, msg := range msgs {
		metrics.TurnsAppended.WithLabelValues(string(msg.Role)).Inc()
	}

	event := &model.CanvasEvent{
		Type:      model.EventTypeTurnAppended,
		CanvasID:  canvasID,
		NodeID:    nodeID,
		UserID:    userID,
		Role:      last.Role,
		TurnCount: len(node.Messages),
	}
	if n := len(node.Messages); n > 0 {
		event.TurnID = node.Messages[n-1].ID
	}
	s.canvases.publish(ctx, event)

	s.logger.WithNode(canvasID, nodeID).Debug("messages appended",
		zap.Int("count", len(msgs)),
		zap.String("role", string(last.Role)),
		zap.Int("turns", len(node.Messages)),
	)
	return node.Messages, nil
}

// History returns the node's turns.
func (s *MessageService) History(ctx context.Context, userID, canvasID, nodeID string) (turns.History, error) {
	node, err := s.canvases.GetNode(ctx, userID, canvasID, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Messages == nil {
		return turns.History{}, nil
	}
	return node.Messages, nil
}
