// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Store backends.
const (
	StoreNATS   = "nats"
	StoreMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Storage
	StoreBackend string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	NATSKVBucket string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	DefaultLLM      string
	DefaultModel    string

	// Circuit breaker around the LLM provider
	BreakerMaxRequests      int
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold float64
	BreakerMinRequests      int

	// Prompt templates
	PromptTemplatesFile string

	// Workspaces
	WorkspaceIdleTTL       time.Duration
	WorkspaceSweepInterval time.Duration

	// Message append retries
	AppendMaxAttempts int
	AppendRetryDelay  time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string
	Env      string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSOrigins:        getListEnv("CORS_ALLOWED_ORIGINS", nil),

		// Storage
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreNATS)),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		NATSKVBucket: getEnv("NATS_KV_BUCKET", "CANVASES"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DefaultLLM:      strings.ToLower(getEnv("DEFAULT_LLM", "openai")),
		DefaultModel:    getEnv("DEFAULT_MODEL", ""),

		// Breaker
		BreakerMaxRequests:      getIntEnv("LLM_BREAKER_MAX_REQUESTS", 3),
		BreakerInterval:         getDurationEnv("LLM_BREAKER_INTERVAL", 30*time.Second),
		BreakerTimeout:          getDurationEnv("LLM_BREAKER_TIMEOUT", 30*time.Second),
		BreakerFailureThreshold: getFloatEnv("LLM_BREAKER_FAILURE_THRESHOLD", 0.6),
		BreakerMinRequests:      getIntEnv("LLM_BREAKER_MIN_REQUESTS", 5),

		// Prompts
		PromptTemplatesFile: getEnv("PROMPT_TEMPLATES_FILE", ""),

		// Workspaces
		WorkspaceIdleTTL:       getDurationEnv("WORKSPACE_IDLE_TTL", 2*time.Hour),
		WorkspaceSweepInterval: getDurationEnv("WORKSPACE_SWEEP_INTERVAL", 5*time.Minute),

		// Append retries
		AppendMaxAttempts: getIntEnv("APPEND_MAX_ATTEMPTS", 3),
		AppendRetryDelay:  getDurationEnv("APPEND_RETRY_DELAY", 80*time.Millisecond),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("ENV", "production"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ServerPort == "" {
		result = multierror.Append(result, fmt.Errorf("PORT is required"))
	}
	if c.JWTSecret == "" {
		result = multierror.Append(result, fmt.Errorf("JWT_SECRET is required"))
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreNATS:
		if c.NATSURL == "" {
			result = multierror.Append(result, fmt.Errorf("NATS_URL is required for the nats store"))
		}
		if c.NATSKVBucket == "" {
			result = multierror.Append(result, fmt.Errorf("NATS_KV_BUCKET is required for the nats store"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreNATS, StoreMemory, c.StoreBackend))
	}

	switch c.DefaultLLM {
	case "openai":
		if c.OpenAIAPIKey == "" {
			result = multierror.Append(result, fmt.Errorf("OPENAI_API_KEY is required when DEFAULT_LLM is openai"))
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			result = multierror.Append(result, fmt.Errorf("ANTHROPIC_API_KEY is required when DEFAULT_LLM is anthropic"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("DEFAULT_LLM must be openai or anthropic, got %q", c.DefaultLLM))
	}

	if c.BreakerFailureThreshold <= 0 || c.BreakerFailureThreshold > 1 {
		result = multierror.Append(result, fmt.Errorf("LLM_BREAKER_FAILURE_THRESHOLD must be in (0, 1]"))
	}
	if c.AppendMaxAttempts < 1 {
		result = multierror.Append(result, fmt.Errorf("APPEND_MAX_ATTEMPTS must be at least 1"))
	}
	if c.WorkspaceIdleTTL <= 0 || c.WorkspaceSweepInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("WORKSPACE_IDLE_TTL and WORKSPACE_SWEEP_INTERVAL must be positive"))
	}

	return result.ErrorOrNil()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
