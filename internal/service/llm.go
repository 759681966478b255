package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/internal/llm"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/prompt"
	"github.com/contexttree/canvas-api/internal/session"
	"github.com/contexttree/canvas-api/internal/turns"
	"github.com/contexttree/canvas-api/pkg/logger"
	"github.com/contexttree/canvas-api/pkg/metrics"
	"github.com/contexttree/canvas-api/pkg/tracing"
)

// ErrUpstream wraps failures reported by the LLM provider.
var ErrUpstream = errors.New("llm request failed")

// LLMService assembles prompts from a node's context and turns and proxies
// them to the configured provider.
type LLMService struct {
	canvases     *CanvasService
	messages     *MessageService
	assembler    *prompt.Assembler
	client       llm.Client
	defaultModel string
	logger       *logger.Logger
}

// NewLLMService creates an LLM service. An empty defaultModel falls back to
// the client's own default.
func NewLLMService(canvases *CanvasService, messages *MessageService, assembler *prompt.Assembler, client llm.Client, defaultModel string, log *logger.Logger) *LLMService {
	return &LLMService{
		canvases:     canvases,
		messages:     messages,
		assembler:    assembler,
		client:       client,
		defaultModel: defaultModel,
		logger:       log,
	}
}

func (s *LLMService) model(requested string) string {
	switch {
	case requested != "":
		return requested
	case s.defaultModel != "":
		return s.defaultModel
	default:
		return s.client.DefaultModel()
	}
}

// Templates lists the registered prompt templates.
func (s *LLMService) Templates() []prompt.Template {
	return s.assembler.Templates()
}

// Preview renders the prompt an LLM call would send, without calling the
// provider.
func (s *LLMService) Preview(ctx context.Context, userID, canvasID, nodeID string, req *model.PromptPreviewRequest) (*model.PromptPreviewResponse, error) {
	ws, err := s.canvases.Workspace(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	node, err := s.canvases.getNode(ctx, canvasID, nodeID)
	if err != nil {
		return nil, err
	}

	result, err := s.render(ws, node, req.TemplateID, req.UserMessage)
	if err != nil {
		return nil, err
	}
	return &model.PromptPreviewResponse{
		Prompt:     result,
		Validation: prompt.ValidatePromptLength(result.Tokens.Total, s.model(req.Model)),
	}, nil
}

// Complete renders the prompt for req, sends it to the provider and returns
// the reply. Length warnings are advisory and returned with the reply. With
// req.Persist the user message and the reply are appended to the node's
// turns.
func (s *LLMService) Complete(ctx context.Context, userID string, req *model.LLMRequest) (*model.LLMResponse, error) {
	ctx, span := tracing.Start(ctx, "LLMService.Complete")
	defer span.End()

	modelName := s.model(req.Model)
	span.SetAttributes(
		attribute.String("canvas.id", req.CanvasID),
		attribute.String("node.id", req.NodeID),
		attribute.String("llm.provider", s.client.Name()),
		attribute.String("llm.model", modelName),
	)
	log := s.logger.WithNode(req.CanvasID, req.NodeID)

	ws, err := s.canvases.Workspace(ctx, userID, req.CanvasID)
	if err != nil {
		return nil, err
	}
	node, err := s.canvases.getNode(ctx, req.CanvasID, req.NodeID)
	if err != nil {
		return nil, err
	}

	result, err := s.render(ws, node, req.TemplateID, req.Message)
	if err != nil {
		return nil, err
	}

	validation := prompt.ValidatePromptLength(result.Tokens.Total, modelName)
	metrics.PromptTokensEstimated.WithLabelValues(result.TemplateID).Observe(float64(result.Tokens.Total))
	if len(validation.Warnings) > 0 {
		metrics.PromptLimitWarnings.WithLabelValues(modelName, strconv.FormatBool(validation.Valid)).Inc()
		log.Warn("prompt near model limit",
			zap.String("model", modelName),
			zap.Int("tokens", validation.Tokens),
			zap.Int("limit", validation.Limit),
			zap.Strings("warnings", validation.Warnings),
		)
	}

	start := time.Now()
	resp, err := s.client.Complete(ctx, &llm.CompletionRequest{
		Model: modelName,
		Messages: []llm.ChatMessage{
			{Role: string(turns.RoleUser), Content: result.Prompt},
		},
	})
	if err != nil {
		metrics.RecordLLMRequest(s.client.Name(), modelName, "error", time.Since(start).Seconds(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("llm request failed", zap.String("model", modelName), zap.Error(err))

		if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	metrics.RecordLLMRequest(s.client.Name(), resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	if req.Persist {
		if err := s.persist(ctx, userID, req, resp.Content); err != nil {
			return nil, err
		}
	}

	out := &model.LLMResponse{
		Message:  resp.Content,
		Model:    resp.Model,
		Warnings: validation.Warnings,
	}
	if out.Model == "" {
		out.Model = modelName
	}
	return out, nil
}

func (s *LLMService) persist(ctx context.Context, userID string, req *model.LLMRequest, reply string) error {
	if _, err := s.messages.AppendExchange(ctx, userID, req.CanvasID, req.NodeID, req.Message, reply); err != nil {
		return fmt.Errorf("failed to persist exchange: %w", err)
	}
	return nil
}

func (s *LLMService) render(ws *session.Workspace, node *model.Node, templateID, userMessage string) (*prompt.Result, error) {
	return s.assembler.Assemble(prompt.Input{
		TemplateID:  templateID,
		Context:     assemble(ws.Context, node.ID),
		History:     historyMessages(node.Messages),
		UserMessage: userMessage,
	})
}

// historyMessages flattens turns into alternating messages, user first.
func historyMessages(history turns.History) []prompt.HistoryMessage {
	out := make([]prompt.HistoryMessage, 0, len(history)*2)
	for _, t := range history {
		if t.User != nil {
			out = append(out, prompt.HistoryMessage{Role: string(turns.RoleUser), Content: t.User.Content})
		}
		if t.Assistant != nil {
			out = append(out, prompt.HistoryMessage{Role: string(turns.RoleAssistant), Content: t.Assistant.Content})
		}
	}
	return out
}
