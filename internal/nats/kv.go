package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/store"
)

// DefaultBucket is the key-value bucket holding canvases and nodes.
const DefaultBucket = "CANVASES"

const (
	canvasKeyPrefix = "canvas."
	nodeKeyPrefix   = "node."
)

// KVStore is a store.Store backed by a JetStream key-value bucket. Node
// revisions are the bucket's per-key revisions, so UpdateNode is an atomic
// compare-and-swap.
type KVStore struct {
	client *Client
	kv     jetstream.KeyValue
}

var _ store.Store = (*KVStore)(nil)

// NewKVStore opens the bucket, creating it when missing.
func NewKVStore(ctx context.Context, client *Client, bucket string) (*KVStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Canvases and nodes",
			History:     1,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value bucket %s: %w", bucket, err)
	}

	return &KVStore{client: client, kv: kv}, nil
}

func canvasKey(canvasID string) string {
	return canvasKeyPrefix + canvasID
}

func nodeKey(canvasID, nodeID string) string {
	return nodeKeyPrefix + canvasID + "." + nodeID
}

func (s *KVStore) CreateCanvas(ctx context.Context, canvas *model.Canvas) error {
	data, err := json.Marshal(canvas)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas: %w", err)
	}
	if _, err := s.kv.Create(ctx, canvasKey(canvas.ID), data); err != nil {
		return translate(err)
	}
	return nil
}

func (s *KVStore) GetCanvas(ctx context.Context, canvasID string) (*model.Canvas, error) {
	entry, err := s.kv.Get(ctx, canvasKey(canvasID))
	if err != nil {
		return nil, translate(err)
	}

	var canvas model.Canvas
	if err := json.Unmarshal(entry.Value(), &canvas); err != nil {
		return nil, fmt.Errorf("failed to decode canvas %s: %w", canvasID, err)
	}
	return &canvas, nil
}

func (s *KVStore) ListCanvases(ctx context.Context, userID string) ([]model.Canvas, error) {
	keys, err := s.keys(ctx, canvasKeyPrefix)
	if err != nil {
		return nil, err
	}

	out := []model.Canvas{}
	for _, key := range keys {
		canvas, err := s.GetCanvas(ctx, strings.TrimPrefix(key, canvasKeyPrefix))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if canvas.UserID == userID {
			out = append(out, *canvas)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *KVStore) CreateNode(ctx context.Context, node *model.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}
	rev, err := s.kv.Create(ctx, nodeKey(node.CanvasID, node.ID), data)
	if err != nil {
		return translate(err)
	}
	node.Revision = rev
	return nil
}

func (s *KVStore) GetNode(ctx context.Context, canvasID, nodeID string) (*model.Node, error) {
	entry, err := s.kv.Get(ctx, nodeKey(canvasID, nodeID))
	if err != nil {
		return nil, translate(err)
	}
	return decodeNode(entry)
}

func (s *KVStore) ListNodes(ctx context.Context, canvasID string) ([]model.Node, error) {
	prefix := nodeKeyPrefix + canvasID + "."
	keys, err := s.keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := []model.Node{}
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, translate(err)
		}
		node, err := decodeNode(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, *node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *KVStore) UpdateNode(ctx context.Context, node *model.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}
	rev, err := s.kv.Update(ctx, nodeKey(node.CanvasID, node.ID), data, node.Revision)
	if err != nil {
		return translate(err)
	}
	node.Revision = rev
	return nil
}

func (s *KVStore) DeleteNode(ctx context.Context, canvasID, nodeID string) error {
	key := nodeKey(canvasID, nodeID)
	if _, err := s.kv.Get(ctx, key); err != nil {
		return translate(err)
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return translate(err)
	}
	return nil
}

// Ping reports whether NATS and the bucket are reachable.
func (s *KVStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return err
	}
	if _, err := s.kv.Status(ctx); err != nil {
		return fmt.Errorf("key-value bucket unavailable: %w", err)
	}
	return nil
}

func (s *KVStore) keys(ctx context.Context, prefix string) ([]string, error) {
	all, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	var keys []string
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func decodeNode(entry jetstream.KeyValueEntry) (*model.Node, error) {
	var node model.Node
	if err := json.Unmarshal(entry.Value(), &node); err != nil {
		return nil, fmt.Errorf("failed to decode node %s: %w", entry.Key(), err)
	}
	node.Revision = entry.Revision()
	return &node, nil
}

// translate maps JetStream key-value errors onto store errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case errors.Is(err, jetstream.ErrKeyExists):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}
