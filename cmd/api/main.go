// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/internal/config"
	"github.com/contexttree/canvas-api/internal/handler"
	"github.com/contexttree/canvas-api/internal/llm"
	natsclient "github.com/contexttree/canvas-api/internal/nats"
	"github.com/contexttree/canvas-api/internal/prompt"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/internal/session"
	"github.com/contexttree/canvas-api/internal/store"
	"github.com/contexttree/canvas-api/internal/turns"
	"github.com/contexttree/canvas-api/pkg/logger"
	"github.com/contexttree/canvas-api/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server",
		zap.String("store", cfg.StoreBackend),
		zap.String("llm", cfg.DefaultLLM),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "canvas-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Storage and events
	var (
		st     store.Store
		events service.EventPublisher
	)
	switch cfg.StoreBackend {
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		st = store.NewMemory()
	default:
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		events = streamManager

		kv, err := natsclient.NewKVStore(ctx, natsClient, cfg.NATSKVBucket)
		if err != nil {
			log.Fatal("failed to open key-value store", zap.Error(err))
		}
		st = kv
	}

	// LLM provider
	provider := llm.Provider(cfg.DefaultLLM)
	llmOpts := llm.Options{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}
	if provider == llm.ProviderAnthropic {
		llmOpts = llm.Options{APIKey: cfg.AnthropicAPIKey}
	}
	llmClient, err := llm.NewClient(provider, llmOpts)
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err))
	}
	breaker := llm.NewBreaker(llmClient, llm.BreakerConfig{
		MaxRequests:      uint32(cfg.BreakerMaxRequests),
		Interval:         cfg.BreakerInterval,
		Timeout:          cfg.BreakerTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
		MinRequests:      uint32(cfg.BreakerMinRequests),
	}, log.Named("llm"))

	// Prompt templates
	assembler := prompt.NewAssembler()
	if cfg.PromptTemplatesFile != "" {
		templates, err := prompt.LoadTemplatesFile(cfg.PromptTemplatesFile)
		if err != nil {
			log.Fatal("failed to load prompt templates", zap.Error(err))
		}
		for _, t := range templates {
			if err := assembler.Register(t); err != nil {
				log.Fatal("invalid prompt template", zap.String("template", t.ID), zap.Error(err))
			}
		}
		log.Info("loaded prompt templates", zap.Int("count", len(templates)))
	}

	// Workspaces
	registry := session.NewRegistry(log.Named("session"))
	go registry.Run(ctx, cfg.WorkspaceSweepInterval, cfg.WorkspaceIdleTTL)

	// Services
	retryPolicy := service.RetryPolicy{
		Attempts: uint(cfg.AppendMaxAttempts),
		Delay:    cfg.AppendRetryDelay,
	}
	canvasSvc := service.NewCanvasService(st, registry, events, retryPolicy, log.Named("canvas"))
	messageSvc := service.NewMessageService(canvasSvc, turns.NewNormalizer(), log.Named("messages"))
	contextSvc := service.NewContextService(canvasSvc)
	versionSvc := service.NewVersionService(canvasSvc, log.Named("versions"))
	llmSvc := service.NewLLMService(canvasSvc, messageSvc, assembler, breaker, cfg.DefaultModel, log.Named("llm"))

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Store:             st,
		Canvases:          canvasSvc,
		Messages:          messageSvc,
		Contexts:          contextSvc,
		Versions:          versionSvc,
		LLM:               llmSvc,
		Logger:            log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.Env == "development" {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel, logger.WithFields(zap.String("service", "canvas-api")))
}
