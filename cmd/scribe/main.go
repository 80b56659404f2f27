// Command scribe generates LLM-driven report sections from Jira data
// and renders report templates from the execution cache.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/jaimegago/scribe/internal/agent"
	"github.com/jaimegago/scribe/internal/cli"
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
	var (
		configPath   = flag.String("config", "", "path to config.yaml")
		promptID     = flag.Int("prompt", 0, "configured prompt id to run")
		request      = flag.String("request", "", "ad-hoc report request text")
		contextJSON  = flag.String("context", "", "report context as a JSON object")
		templatePath = flag.String("template", "", "render a template file instead of generating")
		interactive  = flag.Bool("interactive", false, "pick a configured prompt interactively")
		output       = flag.String("o", "", "write the HTML output to a file instead of stdout")
		logFile      = flag.String("log-file", "", "log to a file (keeps interactive output clean)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scribe: %v\n", err)
		os.Exit(1)
	}

	var logger *slog.Logger
	if *interactive || *logFile != "" {
		var cleanup func()
		logger, cleanup = logging.SetupLoggerWithFile(cfg.Logging.Level, *logFile)
		defer cleanup()
	} else {
		logger = logging.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		fatal("open store: %v", err)
	}
	defer st.Close()

	if *templatePath != "" {
		renderTemplate(ctx, st, *templatePath, *output, logger)
		return
	}

	id, prompt, reportCtx := resolvePrompt(cfg, *promptID, *request, *contextJSON, *interactive)
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "scribe: nothing to do (use -prompt, -request, -template or -interactive)")
		os.Exit(2)
	}

	svc, err := buildService(ctx, cfg, st, logger)
	if err != nil {
		fatal("%v", err)
	}

	result, err := svc.Generate(ctx, id, prompt, reportCtx)
	if err != nil {
		fatal("generate: %v", err)
	}

	if err := writeOutput(*output, result.Artifact); err != nil {
		fatal("%v", err)
	}
	if *output != "" || *interactive {
		fmt.Fprintln(os.Stderr, runSummary(result))
	}
}

// buildService wires the full generation stack: provider adapter, otel
// middleware, rate controller, driver and cache.
func buildService(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*report.Service, error) {
	if err := config.ValidateAPIKeys(cfg.LLM); err != nil {
		return nil, err
	}
	adapter, err := llmfactory.NewAdapter(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create LLM adapter: %w", err)
	}
	instrumented, err := observability.NewLLMMiddleware(adapter, cfg.LLM.Provider, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("instrument LLM adapter: %w", err)
	}

	controller := ratelimit.New(instrumented, ratelimit.Config{
		MaxPerMinute:   cfg.RateLimit.MaxRequestsPerMinute,
		MaxRetries:     cfg.RateLimit.MaxRetries,
		InitialBackoff: cfg.RateLimit.InitialBackoff,
		MaxBackoff:     cfg.RateLimit.MaxBackoff,
		AcquireTimeout: cfg.RateLimit.AcquireTimeout,
	}, logger)

	searcher := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Email, config.JiraToken())
	driver := agent.NewDriver(controller, tools.NewRegistry(), agent.Config{
		MaxIterations:     cfg.Agent.MaxIterations,
		Temperature:       cfg.Agent.Temperature,
		SummaryMaxChars:   cfg.Agent.SummaryMaxChars,
		NonCacheableTools: cfg.Agent.NonCacheableTools,
		SessionTools: func(reg *tools.Registry) {
			// Fresh issue cache per run.
			tools.RegisterBuiltins(reg, searcher, tools.NewIssueCache())
		},
	}, logger)

	return report.NewService(driver, st, logger), nil
}

func resolvePrompt(cfg *config.Config, promptID int, request, contextJSON string, interactive bool) (int, string, map[string]any) {
	if interactive {
		item := pickPrompt(cfg)
		if item == nil {
			os.Exit(0)
		}
		prompt := cfg.Prompts[item.ID]
		return item.ID, prompt.Request, prompt.Context
	}
	if request != "" {
		return promptID, request, parseContext(contextJSON)
	}
	if prompt, ok := cfg.Prompts[promptID]; ok {
		return promptID, prompt.Request, prompt.Context
	}
	return promptID, "", nil
}

func pickPrompt(cfg *config.Config) *cli.PromptItem {
	items := make([]cli.PromptItem, 0, len(cfg.Prompts))
	for id, prompt := range cfg.Prompts {
		items = append(items, cli.PromptItem{ID: id, Name: prompt.Name, Request: prompt.Request})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	item, err := cli.RunPromptSelector(items)
	if err != nil {
		fatal("%v", err)
	}
	return item
}

func parseContext(contextJSON string) map[string]any {
	if contextJSON == "" {
		return nil
	}
	var reportCtx map[string]any
	if err := json.Unmarshal([]byte(contextJSON), &reportCtx); err != nil {
		fatal("invalid -context: %v", err)
	}
	return reportCtx
}

func renderTemplate(ctx context.Context, st *store.Store, templatePath, output string, logger *slog.Logger) {
	tmpl, err := os.ReadFile(templatePath)
	if err != nil {
		fatal("read template: %v", err)
	}

	svc := report.NewService(nil, st, logger)
	result, err := svc.RenderTemplate(ctx, string(tmpl), nil)
	if err != nil {
		fatal("render: %v", err)
	}
	if err := writeOutput(output, result.HTML); err != nil {
		fatal("%v", err)
	}
	if len(result.Missing) > 0 {
		fmt.Fprintf(os.Stderr, "scribe: no cached execution for prompts %v\n", result.Missing)
	}
}

func writeOutput(path, html string) error {
	if path == "" {
		fmt.Println(html)
		return nil
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func runSummary(result *report.GenerateResult) string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	valueStyle := lipgloss.NewStyle().Bold(true)

	line := func(label, value string) string {
		return labelStyle.Render(label) + " " + valueStyle.Render(value)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		line("execution:", result.ExecutionID),
		line("issues:", fmt.Sprintf("%d", result.IssueCount)),
		line("iterations:", fmt.Sprintf("%d (%d LLM calls, %d tokens)", result.Iterations, result.LLMCalls, result.TotalTokens)),
		line("elapsed:", result.Elapsed.String()),
	)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "scribe: "+format+"\n", args...)
	os.Exit(1)
}
