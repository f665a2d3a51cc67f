// Growbal Discovery server — conversational service-provider discovery
// over HTTP with a streaming chat pipeline.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/growbal/discovery/pkg/agent"
	"github.com/growbal/discovery/pkg/api"
	"github.com/growbal/discovery/pkg/cleanup"
	"github.com/growbal/discovery/pkg/config"
	"github.com/growbal/discovery/pkg/database"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/orchestrator"
	"github.com/growbal/discovery/pkg/queue"
	"github.com/growbal/discovery/pkg/retriever"
	"github.com/growbal/discovery/pkg/services"
	"github.com/growbal/discovery/pkg/workflow"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	slog.Info("Starting Growbal Discovery", "http_port", cfg.HTTPPort)

	// Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// Domain services
	sessionService := services.NewSessionService(dbClient.Client)

	llmClient := llm.NewClient(llm.Config{
		Model:   cfg.LLMModel,
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
	})

	profileRetriever, err := retriever.New(retriever.Config{
		Scheme: cfg.WeaviateScheme,
		Host:   cfg.WeaviateHost,
		Class:  cfg.WeaviateClass,
	})
	if err != nil {
		slog.Error("Failed to initialize profile retriever", "error", err)
		os.Exit(1)
	}
	slog.Info("Profile retriever initialized",
		"host", cfg.WeaviateHost, "class", cfg.WeaviateClass)

	// Pipeline
	coordinator := workflow.NewCoordinator(
		agent.NewSearchAgent(llmClient, profileRetriever),
		agent.NewAdjudicator(llmClient),
		agent.NewSummarizer(llmClient, cfg.GrowbalPortal),
	)
	orch := orchestrator.NewOrchestrator(
		sessionService,
		coordinator,
		orchestrator.NewResponder(llmClient),
		llmClient,
		orchestrator.Params{
			MaxResults:    cfg.MaxResults,
			MinSimilarity: cfg.MinSimilarity,
			Threshold:     cfg.RelevanceThreshold,
			Style:         models.SummaryStyle(cfg.SummaryStyle),
		},
	)

	// Turn executor and lifecycle sweeper
	executor := queue.NewTurnExecutor(queue.DefaultTurnTimeout)
	sweeper := cleanup.NewService(sessionService, cfg.SessionDeactivateAfter, cfg.SweepInterval)
	sweeper.Start(ctx)

	// HTTP server
	creds, err := api.ParseCredentials(cfg.AuthUsers)
	if err != nil {
		slog.Error("Failed to parse AUTH_USERS", "error", err)
		os.Exit(1)
	}
	server := api.NewServer(cfg, dbClient, sessionService, orch, executor, creds)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Graceful shutdown: stop accepting turns, drain in-flight ones, then
	// close the HTTP server with its own timeout budget.
	sweeper.Stop()

	execDone := make(chan struct{})
	go func() {
		executor.Stop()
		close(execDone)
	}()
	select {
	case <-execDone:
		slog.Info("Turn executor stopped gracefully")
	case <-time.After(30 * time.Second):
		slog.Warn("Turn executor shutdown timeout exceeded")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
