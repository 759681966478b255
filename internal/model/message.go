package model

import (
	"time"

	"github.com/contexttree/canvas-api/internal/contextgraph"
	"github.com/contexttree/canvas-api/internal/prompt"
	"github.com/contexttree/canvas-api/internal/turns"
)

// AppendMessageRequest is the body of POST .../messages.
type AppendMessageRequest struct {
	ID        string     `json:"id,omitempty" validate:"omitempty,max=128"`
	Role      turns.Role `json:"role" validate:"required,oneof=user assistant"`
	Content   string     `json:"content" validate:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Message converts the request to a turns.Message.
func (r *AppendMessageRequest) Message() turns.Message {
	return turns.Message{
		ID:        r.ID,
		Role:      r.Role,
		Content:   r.Content,
		Timestamp: r.Timestamp,
	}
}

// MessagesResponse carries a node's turns.
type MessagesResponse struct {
	Messages turns.History `json:"messages"`
}

// LLMRequest is the body of POST /api/llm.
type LLMRequest struct {
	CanvasID   string `json:"canvasId" validate:"required,nodeid"`
	NodeID     string `json:"nodeId" validate:"required,nodeid"`
	Model      string `json:"model,omitempty"`
	Message    string `json:"message" validate:"required"`
	TemplateID string `json:"templateId,omitempty"`
	Persist    bool   `json:"persist,omitempty"`
}

// LLMResponse is the reply of POST /api/llm.
type LLMResponse struct {
	Message  string   `json:"message"`
	Model    string   `json:"model,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// PromptPreviewRequest asks for a rendered prompt without calling a model.
type PromptPreviewRequest struct {
	TemplateID  string `json:"templateId,omitempty"`
	UserMessage string `json:"userMessage"`
	Model       string `json:"model,omitempty"`
}

// PromptPreviewResponse is a rendered prompt and its length check.
type PromptPreviewResponse struct {
	Prompt     *prompt.Result    `json:"prompt"`
	Validation prompt.Validation `json:"validation"`
}

// ConnectionRequest wires a context node to an LLM-call node.
type ConnectionRequest struct {
	ContextNodeID string                   `json:"contextNodeId" validate:"required,nodeid"`
	LLMCallNodeID string                   `json:"llmCallNodeId" validate:"required,nodeid"`
	ContextType   contextgraph.ContextType `json:"contextType,omitempty" validate:"omitempty,oneof=system rag memory custom"`
	Priority      int                      `json:"priority"`
	IsActive      *bool                    `json:"isActive,omitempty"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
