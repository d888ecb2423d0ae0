// Package main implements the coordinator-agent HTTP server: an
// LLM-driven dispatch planner that turns a natural-language query into an
// ordered fan-out of calls to dynamic microservices.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/c360studio/coordinator-agent/audit"
	"github.com/c360studio/coordinator-agent/config"
	"github.com/c360studio/coordinator-agent/dispatcher"
	"github.com/c360studio/coordinator-agent/extractor"
	"github.com/c360studio/coordinator-agent/httpapi"
	"github.com/c360studio/coordinator-agent/llm"
	_ "github.com/c360studio/coordinator-agent/llm/providers"
	"github.com/c360studio/coordinator-agent/metrics"
	"github.com/c360studio/coordinator-agent/selector"
	"github.com/c360studio/coordinator-agent/vectorstore"
)

// Build information (set via ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "coordinator",
		Short:   "LLM-driven service dispatch coordinator",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to coordinator.yaml")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func serve(ctx context.Context, configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	loader := config.NewLoader(logger)
	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	chatPrompt, err := config.ResolvePromptTemplate(cfg.Prompts.SelectionSystemPrompt)
	if err != nil {
		return fmt.Errorf("resolve selection system prompt: %w", err)
	}
	userPrompt, err := config.ResolvePromptTemplate(cfg.Prompts.SelectionUserPrompt)
	if err != nil {
		return fmt.Errorf("resolve selection user prompt: %w", err)
	}

	llmClient := llm.NewClient(cfg.LMStudio.URL,
		llm.WithChatPath(cfg.LMStudio.ChatPath),
		llm.WithEmbedPath(cfg.LMStudio.EmbedPath),
		llm.WithChatModel(cfg.LMStudio.ChatModel),
		llm.WithEmbedModel(cfg.LMStudio.EmbedModel),
		llm.WithLogger(logger),
		llm.WithHTTPClient(&http.Client{
			Timeout: cfg.LMStudio.ReadTimeout,
			Transport: &http.Transport{
				Proxy:       http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{Timeout: cfg.LMStudio.ConnectTimeout}).DialContext,
			},
		}),
	)

	vsClient := vectorstore.New(cfg.VectorStore.URL, cfg.VectorStore.Collection, &http.Client{Timeout: cfg.LMStudio.ReadTimeout})

	auditLogger, err := audit.NewLogger(cfg.Audit.LogPath, logger)
	if err != nil {
		return fmt.Errorf("initialize audit logger: %w", err)
	}

	sel := selector.New(llmClient, chatPrompt, userPrompt)
	ext := extractor.New(llmClient, logger)
	disp := dispatcher.New(nil, auditLogger, logger)

	promptWatcher, err := config.NewPromptWatcher(
		[]string{cfg.Prompts.SelectionSystemPrompt, cfg.Prompts.SelectionUserPrompt},
		500*time.Millisecond,
		func() {
			newSystem, err := config.ResolvePromptTemplate(cfg.Prompts.SelectionSystemPrompt)
			if err != nil {
				logger.Warn("prompt hot-reload: failed to re-read selection system prompt", "error", err)
				return
			}
			newUser, err := config.ResolvePromptTemplate(cfg.Prompts.SelectionUserPrompt)
			if err != nil {
				logger.Warn("prompt hot-reload: failed to re-read selection user prompt", "error", err)
				return
			}
			sel.SetPrompts(newSystem, newUser)
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("start prompt watcher: %w", err)
	}
	if promptWatcher != nil {
		go promptWatcher.Start(ctx)
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	server := httpapi.New(llmClient, vsClient, sel, ext, disp, cfg.Audit.LogPath, reg, logger)

	mux := http.NewServeMux()
	server.Routes(mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
