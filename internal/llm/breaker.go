package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/pkg/logger"
)

// BreakerConfig configures the circuit breaker around a provider.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Breaker is a Client that stops calling its provider after repeated
// failures and answers ErrUnavailable until the provider recovers.
type Breaker struct {
	Client
	cb *gobreaker.CircuitBreaker
}

// NewBreaker wraps client with a circuit breaker.
func NewBreaker(client Client, cfg BreakerConfig, log *logger.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "llm-" + client.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A caller going away says nothing about the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Breaker{
		Client: client,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

// Complete forwards to the wrapped client unless the breaker is open.
func (b *Breaker) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.Client.Complete(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.(*CompletionResponse), nil
}

// State reports the breaker state, for readiness and logs.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
