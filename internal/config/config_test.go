package config

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StoreNATS, cfg.StoreBackend)
	assert.Equal(t, 3, cfg.AppendMaxAttempts)
	assert.Equal(t, 80*time.Millisecond, cfg.AppendRetryDelay)
	assert.Nil(t, cfg.CORSOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("APPEND_RETRY_DELAY", "10ms")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("LLM_BREAKER_FAILURE_THRESHOLD", "0.5")

	cfg := Load()

	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 10*time.Millisecond, cfg.AppendRetryDelay)
	assert.Equal(t, 60, cfg.RateLimitRequests)
	assert.Equal(t, 0.5, cfg.BreakerFailureThreshold)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Load()
	cfg.StoreBackend = "postgres"
	cfg.DefaultLLM = "openai"
	cfg.OpenAIAPIKey = ""
	cfg.AppendMaxAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "APPEND_MAX_ATTEMPTS")
}

func TestValidateAcceptsMemoryWithAnthropic(t *testing.T) {
	cfg := Load()
	cfg.StoreBackend = StoreMemory
	cfg.DefaultLLM = "anthropic"
	cfg.AnthropicAPIKey = "sk-test"

	assert.NoError(t, cfg.Validate())
}
