// Package main provides the entry point for the cubechat server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/datales/cubechat/internal/chat"
	"github.com/datales/cubechat/internal/config"
	"github.com/datales/cubechat/internal/embedding"
	"github.com/datales/cubechat/internal/execution"
	"github.com/datales/cubechat/internal/extraction"
	"github.com/datales/cubechat/internal/extraction/providers/ollama"
	"github.com/datales/cubechat/internal/extraction/providers/openai"
	"github.com/datales/cubechat/internal/resolver"
	"github.com/datales/cubechat/internal/schema"
	"github.com/datales/cubechat/internal/server"
	"github.com/datales/cubechat/internal/session"
	sessionbadger "github.com/datales/cubechat/internal/session/badger"
	"github.com/datales/cubechat/internal/similarity"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting cubechat",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	)

	// Load the cube catalog
	catalog, err := schema.NewManager(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("catalog loaded",
		zap.String("path", cfg.Catalog.Path),
		zap.Int("cubes", len(catalog.ListCubes())),
	)

	// Initialize the session store
	sessions, err := openSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer func() {
		logger.Info("closing session store")
		if err := sessions.Close(); err != nil {
			logger.Error("failed to close session store", zap.Error(err))
		}
	}()

	// Initialize the embedding provider and member index
	embedder, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	members := similarity.NewMemberIndex(embedder, logger)
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancelIndex()
	if err := members.IndexCatalog(indexCtx, catalog); err != nil {
		return fmt.Errorf("failed to index catalog members: %w", err)
	}
	defer func() { _ = members.Close() }()
	logger.Info("member index built", zap.Int("members", members.Size()))

	cubes, err := similarity.NewCubeIndex(catalog)
	if err != nil {
		return fmt.Errorf("failed to index cubes: %w", err)
	}
	defer func() { _ = cubes.Close() }()

	// Initialize the extraction chain
	if len(cfg.Extraction.Strategies) == 0 {
		return fmt.Errorf("no extraction strategies configured (set CUBECHAT_MODEL or extraction.strategies)")
	}
	strategies, err := extraction.BuildStrategies(cfg.Extraction, map[string]extraction.ProviderFactory{
		"ollama": func(name string, pc extraction.ProviderConfig) (extraction.Provider, error) {
			return ollama.NewProvider(name, pc)
		},
		"openai": func(name string, pc extraction.ProviderConfig) (extraction.Provider, error) {
			return openai.NewProvider(name, pc)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to build extraction strategies: %w", err)
	}
	chain := extraction.NewChain(strategies, extraction.RetryPolicy{
		MaxAttempts: cfg.Extraction.MaxAttempts,
		Backoff:     cfg.Extraction.Backoff,
	}, logger)
	extractor := extraction.NewService(chain, logger)
	defer func() { _ = extractor.Close() }()

	// Query resolution and execution
	resolve := resolver.New(members, logger,
		resolver.WithMinSimilarity(cfg.Similarity.MinSimilarity))
	executor, err := execution.NewClient(cfg.Execution, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize data API client: %w", err)
	}

	chatRouter := chat.New(catalog, cubes, extractor, resolve, executor, sessions, nil, logger, cfg.Chat)

	// Initialize HTTP server
	srv := server.New(cfg, catalog, chatRouter, sessions, logger)

	// Handle graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

func openSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Storage.Backend == "memory" {
		return session.NewMemoryStore(), nil
	}
	return sessionbadger.New(&sessionbadger.Options{
		DataDir:    cfg.Storage.DataDir,
		SyncWrites: cfg.Storage.SyncWrites,
		TTL:        cfg.Storage.SessionTTL,
	})
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Log.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Log.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}
