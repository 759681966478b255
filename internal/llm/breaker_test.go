package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contexttree/canvas-api/pkg/logger"
)

type stubClient struct {
	calls int
	err   error
}

func (s *stubClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &CompletionResponse{Content: "ok", Model: req.Model}, nil
}

func (s *stubClient) Name() string         { return "stub" }
func (s *stubClient) Models() []string     { return []string{"stub-1"} }
func (s *stubClient) DefaultModel() string { return "stub-1" }

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	stub := &stubClient{}
	b := NewBreaker(stub, testBreakerConfig(), logger.NewNop())

	resp, err := b.Complete(context.Background(), &CompletionRequest{Model: "stub-1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "stub", b.Name())
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	upstream := errors.New("upstream 500")
	stub := &stubClient{err: upstream}
	b := NewBreaker(stub, testBreakerConfig(), logger.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), &CompletionRequest{})
		require.ErrorIs(t, err, upstream)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Complete(context.Background(), &CompletionRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, stub.calls)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	stub := &stubClient{err: context.Canceled}
	b := NewBreaker(stub, testBreakerConfig(), logger.NewNop())

	for i := 0; i < 4; i++ {
		_, err := b.Complete(context.Background(), &CompletionRequest{})
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient("mystery", Options{APIKey: "k"})
	assert.Error(t, err)

	c, err := NewClient(ProviderOpenAI, Options{APIKey: "k", BaseURL: "http://localhost:9999/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
	assert.Equal(t, "gpt-4o", c.DefaultModel())
}
