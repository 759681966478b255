package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/contexttree/canvas-api/internal/model"
)

// Memory is an in-process Store. Records are kept as JSON so callers never
// share memory with the store, matching the behaviour of the NATS backend.
type Memory struct {
	mu       sync.RWMutex
	canvases map[string][]byte
	nodes    map[string]map[string]memoryRecord
}

type memoryRecord struct {
	data     []byte
	revision uint64
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		canvases: make(map[string][]byte),
		nodes:    make(map[string]map[string]memoryRecord),
	}
}

func (m *Memory) CreateCanvas(ctx context.Context, canvas *model.Canvas) error {
	data, err := json.Marshal(canvas)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.canvases[canvas.ID]; exists {
		return ErrConflict
	}
	m.canvases[canvas.ID] = data
	return nil
}

func (m *Memory) GetCanvas(ctx context.Context, canvasID string) (*model.Canvas, error) {
	m.mu.RLock()
	data, ok := m.canvases[canvasID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var canvas model.Canvas
	if err := json.Unmarshal(data, &canvas); err != nil {
		return nil, err
	}
	return &canvas, nil
}

func (m *Memory) ListCanvases(ctx context.Context, userID string) ([]model.Canvas, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.Canvas{}
	for _, data := range m.canvases {
		var canvas model.Canvas
		if err := json.Unmarshal(data, &canvas); err != nil {
			return nil, err
		}
		if canvas.UserID == userID {
			out = append(out, canvas)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateNode(ctx context.Context, node *model.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.nodes[node.CanvasID]
	if !ok {
		bucket = make(map[string]memoryRecord)
		m.nodes[node.CanvasID] = bucket
	}
	if _, exists := bucket[node.ID]; exists {
		return ErrConflict
	}
	bucket[node.ID] = memoryRecord{data: data, revision: 1}
	node.Revision = 1
	return nil
}

func (m *Memory) GetNode(ctx context.Context, canvasID, nodeID string) (*model.Node, error) {
	m.mu.RLock()
	rec, ok := m.nodes[canvasID][nodeID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeNode(rec)
}

func (m *Memory) ListNodes(ctx context.Context, canvasID string) ([]model.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.Node{}
	for _, rec := range m.nodes[canvasID] {
		node, err := decodeNode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateNode(ctx context.Context, node *model.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.nodes[node.CanvasID][node.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.revision != node.Revision {
		return ErrConflict
	}
	next := memoryRecord{data: data, revision: rec.revision + 1}
	m.nodes[node.CanvasID][node.ID] = next
	node.Revision = next.revision
	return nil
}

func (m *Memory) DeleteNode(ctx context.Context, canvasID, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[canvasID][nodeID]; !ok {
		return ErrNotFound
	}
	delete(m.nodes[canvasID], nodeID)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func decodeNode(rec memoryRecord) (*model.Node, error) {
	var node model.Node
	if err := json.Unmarshal(rec.data, &node); err != nil {
		return nil, err
	}
	node.Revision = rec.revision
	return &node, nil
}
