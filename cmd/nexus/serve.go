package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexuscore/agentcore/internal/config"
	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/server"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP edge: chat (SSE), ingestion and search endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	tracer, shutdownTracing, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       tracingEndpoint(cfg),
		Protocol:       cfg.Observability.Tracing.Protocol,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
		Attributes:     cfg.Observability.Tracing.Attributes,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live-reload is best effort: a broken edit logs a warning and the
	// running config stays in effect.
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := config.Watch(ctx, path, logger, func(updated *config.Config) {
			logger.Info("configuration file changed; restart to apply non-logging settings")
		}); err != nil {
			logger.Warn("config watching unavailable", "error", err)
		}
	}

	provider := buildProvider(cfg)
	if closer, ok := provider.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	if cfg.LLM.AutoPullModels {
		if err := provider.EnsureModelAvailable(ctx, cfg.LLM.ChatModel); err != nil {
			return fmt.Errorf("chat model unavailable: %w", err)
		}
		if err := provider.EnsureModelAvailable(ctx, cfg.LLM.EmbeddingModel); err != nil {
			return fmt.Errorf("embedding model unavailable: %w", err)
		}
	} else {
		exists, err := provider.ModelExists(ctx, cfg.LLM.ChatModel)
		if err != nil {
			return fmt.Errorf("check chat model: %w", err)
		}
		if !exists {
			return fmt.Errorf("chat model %q is not available and auto-pull is disabled", cfg.LLM.ChatModel)
		}
	}

	manager, registry, err := buildMCPRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Stop()
	if registry != nil {
		defer registry.Stop()
	}

	runtime := buildRuntime(cfg, provider, registry)

	vectorStore, err := buildVectorStore(cfg)
	if err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}
	defer vectorStore.Close()

	pool, err := buildBrowserPool()
	if err != nil {
		logger.Warn("headless browser unavailable, web ingestion disabled", "error", err)
	} else {
		defer pool.Close()
	}

	pipeline := buildPipeline(cfg, provider, vectorStore, pool)

	edge := &server.Server{
		Runtime:        runtime,
		Provider:       provider,
		Pipeline:       pipeline,
		Store:          vectorStore,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Metrics:        metrics,
		Tracer:         tracer,
		Logger:         logger,
	}

	apiServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           edge.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.Observability.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http edge listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown incomplete", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown incomplete", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("trace flush incomplete", "error", err)
	}
	return nil
}

func tracingEndpoint(cfg *config.Config) string {
	if !cfg.Observability.Tracing.Enabled {
		return ""
	}
	return cfg.Observability.Tracing.Endpoint
}
