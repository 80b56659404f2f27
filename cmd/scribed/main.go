// Command scribed serves the report generation API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaimegago/scribe/internal/agent"
	"github.com/jaimegago/scribe/internal/api"
	"github.com/jaimegago/scribe/internal/config"
	"github.com/jaimegago/scribe/internal/jira"
	"github.com/jaimegago/scribe/internal/llmfactory"
	"github.com/jaimegago/scribe/internal/logging"
	"github.com/jaimegago/scribe/internal/observability"
	"github.com/jaimegago/scribe/internal/ratelimit"
	"github.com/jaimegago/scribe/internal/report"
	"github.com/jaimegago/scribe/internal/store"
	"github.com/jaimegago/scribe/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scribed: %v\n", err)
		os.Exit(1)
	}

	logger := logging.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.Setup(ctx, observability.DefaultConfig())
	if err != nil {
		logger.Error("failed to setup observability", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateAPIKeys(cfg.LLM); err != nil {
		logger.Error("invalid LLM configuration", "error", err)
		os.Exit(1)
	}
	adapter, err := llmfactory.NewAdapter(ctx, cfg.LLM)
	if err != nil {
		logger.Error("failed to create LLM adapter", "error", err)
		os.Exit(1)
	}
	instrumented, err := observability.NewLLMMiddleware(adapter, cfg.LLM.Provider, cfg.LLM.Model)
	if err != nil {
		logger.Error("failed to instrument LLM adapter", "error", err)
		os.Exit(1)
	}

	// One controller per process; every session shares its admission
	// window.
	controller := ratelimit.New(instrumented, ratelimit.Config{
		MaxPerMinute:   cfg.RateLimit.MaxRequestsPerMinute,
		MaxRetries:     cfg.RateLimit.MaxRetries,
		InitialBackoff: cfg.RateLimit.InitialBackoff,
		MaxBackoff:     cfg.RateLimit.MaxBackoff,
		AcquireTimeout: cfg.RateLimit.AcquireTimeout,
	}, logger)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	searcher := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Email, config.JiraToken())
	driver := agent.NewDriver(controller, tools.NewRegistry(), agent.Config{
		MaxIterations:     cfg.Agent.MaxIterations,
		Temperature:       cfg.Agent.Temperature,
		SummaryMaxChars:   cfg.Agent.SummaryMaxChars,
		NonCacheableTools: cfg.Agent.NonCacheableTools,
		SessionTools: func(reg *tools.Registry) {
			tools.RegisterBuiltins(reg, searcher, tools.NewIssueCache())
		},
	}, logger)
	service := report.NewService(driver, st, logger)

	mux := http.NewServeMux()
	api.New(service, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // report generation is slow
	}

	go func() {
		logger.Info("scribed starting", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := shutdownOtel(shutdownCtx); err != nil {
		logger.Error("observability shutdown error", "error", err)
	}
	logger.Info("scribed stopped")
}
