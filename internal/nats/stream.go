package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/contexttree/canvas-api/internal/model"
)

const (
	// StreamName is the name of the canvas events stream.
	StreamName = "CANVAS_EVENTS"

	// SubjectPrefix is the prefix for all canvas event subjects.
	SubjectPrefix = "canvas"
)

// StreamManager publishes canvas events to JetStream.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream creates the events stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Canvas change events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(canvasID, nodeID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.node.%s.%s", SubjectPrefix, canvasID, nodeID, eventType)
}

// CanvasFilter returns the filter subject for all events of a canvas.
func CanvasFilter(canvasID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, canvasID)
}

// PublishEvent publishes an event to JetStream. The event id doubles as the
// message id so JetStream drops duplicates inside its window.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.CanvasEvent) error {
	subject := EventSubject(event.CanvasID, event.NodeID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
