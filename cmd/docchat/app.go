package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/docchat/internal/config"
	"github.com/fyrsmithlabs/docchat/internal/embeddings"
	"github.com/fyrsmithlabs/docchat/internal/index"
	"github.com/fyrsmithlabs/docchat/internal/llm"
	"github.com/fyrsmithlabs/docchat/internal/logging"
	"github.com/fyrsmithlabs/docchat/internal/persona"
	"github.com/fyrsmithlabs/docchat/internal/rag"
	"github.com/fyrsmithlabs/docchat/internal/rewrite"
	"github.com/fyrsmithlabs/docchat/internal/synthesis"
	"github.com/fyrsmithlabs/docchat/internal/telemetry"
	"github.com/fyrsmithlabs/docchat/internal/vectorstore"
	"go.uber.org/zap"
)

// app bundles the wired pipeline with the resources it owns.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	pipeline *rag.Pipeline

	store            vectorstore.Store
	telemetryCleanup func(context.Context) error
}

// buildApp wires configuration into a ready pipeline.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	telemetryCleanup, err := telemetry.Init(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	storagePath, err := expandHome(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	var store vectorstore.Store
	switch cfg.Storage.Backend {
	case "qdrant":
		store, err = vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:       cfg.Storage.QdrantHost,
			Port:       cfg.Storage.QdrantPort,
			VectorSize: cfg.Embeddings.VectorSize,
		}, embedder)
	default:
		store, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path: filepath.Join(storagePath, "vectors"),
		}, embedder)
	}
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	loader, err := index.NewFSLoader(storagePath, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating index loader: %w", err)
	}

	chatClient, err := llm.New(cfg.LLM)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating chat client: %w", err)
	}
	logger.Info(ctx, "chat client configured",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		logging.RedactedString("api_key", cfg.LLM.APIKey))

	var rewriter rag.Rewriter
	if !cfg.Retrieval.DisableHyDE {
		rewriter, err = rewrite.NewHyDE(chatClient)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("creating rewriter: %w", err)
		}
	}

	synth, err := synthesis.New(chatClient)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating synthesizer: %w", err)
	}

	pipeline, err := rag.New(rag.Options{
		Loader:      loader,
		Rewriter:    rewriter,
		Synthesizer: synth,
		Personas:    persona.NewRegistry(),
		ErrorClient: chatClient,
		Retrieval:   cfg.Retrieval,
		Logger:      logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	return &app{
		cfg:              cfg,
		logger:           logger,
		pipeline:         pipeline,
		store:            store,
		telemetryCleanup: telemetryCleanup,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.telemetryCleanup != nil {
		_ = a.telemetryCleanup(ctx)
	}
	_ = a.logger.Sync()
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
