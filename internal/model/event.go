package model

import (
	"time"

	"github.com/contexttree/canvas-api/internal/turns"
)

// EventType represents the type of canvas event.
type EventType string

const (
	EventTypeTurnAppended EventType = "turn_appended"
	EventTypeNodeDeleted  EventType = "node_deleted"
)

// CanvasEvent is published to the event stream after a change is persisted.
type CanvasEvent struct {
	ID        string     `json:"id"`
	Type      EventType  `json:"type"`
	CanvasID  string     `json:"canvasId"`
	NodeID    string     `json:"nodeId"`
	UserID    string     `json:"userId"`
	Role      turns.Role `json:"role,omitempty"`
	TurnID    string     `json:"turnId,omitempty"`
	TurnCount int        `json:"turnCount,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
