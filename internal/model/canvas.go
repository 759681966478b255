// Package model defines data structures for the canvas API.
package model

import (
	"time"

	"github.com/contexttree/canvas-api/internal/contextgraph"
	"github.com/contexttree/canvas-api/internal/turns"
)

// Canvas is a user's workspace of nodes.
type Canvas struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NodeType is the role a node plays on the canvas.
type NodeType string

const (
	NodeTypeConversation NodeType = "conversation"
	NodeTypeContext      NodeType = "context"
	NodeTypeLLMCall      NodeType = "llm_call"
)

// Node is a canvas node. Conversation and LLM-call nodes carry turns;
// context nodes carry Content.
type Node struct {
	ID          string                   `json:"id"`
	CanvasID    string                   `json:"canvasId"`
	Type        NodeType                 `json:"type"`
	Title       string                   `json:"title,omitempty"`
	Content     string                   `json:"content,omitempty"`
	ContextType contextgraph.ContextType `json:"contextType,omitempty"`
	Messages    turns.History            `json:"messages"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`

	// Revision is the store revision the node was read at.
	Revision uint64 `json:"-"`
}

// CreateCanvasRequest is the request to create a canvas.
type CreateCanvasRequest struct {
	Title string `json:"title" validate:"max=256"`
}

// ListCanvasesResponse is the response for listing canvases.
type ListCanvasesResponse struct {
	Canvases []Canvas `json:"canvases"`
	Total    int      `json:"total"`
}

// CreateNodeRequest is the request to add a node to a canvas. ID may be
// supplied by the editor.
type CreateNodeRequest struct {
	ID          string                   `json:"id,omitempty" validate:"omitempty,nodeid"`
	Type        NodeType                 `json:"type" validate:"required,oneof=conversation context llm_call"`
	Title       string                   `json:"title,omitempty" validate:"max=256"`
	Content     string                   `json:"content,omitempty" validate:"max=200000"`
	ContextType contextgraph.ContextType `json:"contextType,omitempty" validate:"omitempty,oneof=system rag memory custom"`
}

// UpdateNodeContentRequest replaces a context node's content.
type UpdateNodeContentRequest struct {
	Content     string                   `json:"content" validate:"max=200000"`
	ContextType contextgraph.ContextType `json:"contextType,omitempty" validate:"omitempty,oneof=system rag memory custom"`
}
