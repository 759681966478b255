package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/store"
	"github.com/contexttree/canvas-api/pkg/metrics"
)

// RetryPolicy bounds node read-modify-write retries. The wait before retry n
// (starting at 1) is n*Delay.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
}

// DefaultRetryPolicy is three attempts, 80ms apart and growing linearly.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 80 * time.Millisecond}
}

// mutateNode reads a node, applies mutate and writes it back. A node that is
// not visible yet, or a write that lost a race, is retried with a fresh read.
func (s *CanvasService) mutateNode(ctx context.Context, canvasID, nodeID string, mutate func(*model.Node) error) (*model.Node, error) {
	policy := s.retry
	if policy.Attempts == 0 {
		policy = DefaultRetryPolicy()
	}

	var (
		updated *model.Node
		lastErr error
	)
	err := retry.Do(
		func() error {
			node, err := s.store.GetNode(ctx, canvasID, nodeID)
			if err != nil {
				lastErr = err
				return err
			}
			if err := mutate(node); err != nil {
				lastErr = err
				return retry.Unrecoverable(err)
			}
			node.UpdatedAt = s.now().UTC()
			if err := s.store.UpdateNode(ctx, node); err != nil {
				lastErr = err
				return err
			}
			updated = node
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(policy.Attempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * policy.Delay
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			metrics.AppendRetries.WithLabelValues(retryReason(err)).Inc()
			s.logger.WithNode(canvasID, nodeID).Debug("retrying node update",
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return updated, nil
	}

	if lastErr == nil {
		lastErr = err
	}
	switch {
	case errors.Is(lastErr, store.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	case errors.Is(lastErr, ErrInvalidMessage):
		return nil, lastErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, fmt.Errorf("failed to update node: %w", lastErr)
}

func retryable(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict)
}

func retryReason(err error) string {
	if errors.Is(err, store.ErrConflict) {
		return "conflict"
	}
	return "not_found"
}
