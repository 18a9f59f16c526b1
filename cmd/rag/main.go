package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/httpapi"
	"docqa/internal/observability"
	"docqa/internal/service"
	"docqa/internal/tui"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "rag",
		Short:        "Answer questions about a document",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/docqa/config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd.Name(), configPath, os.Stdout, runServe)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Rebuild the index from a document (default: document.path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd.Name(), configPath, os.Stderr, func(ctx context.Context, _ *config.AppConfig, a *app, _ *slog.Logger) error {
				var out service.IngestOutcome
				if len(args) == 1 {
					out = a.svc.IngestFile(ctx, args[0])
				} else {
					out = a.svc.Ingest(ctx)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
				if out.Error != "" {
					return errors.New(out.Error)
				}
				return nil
			})
		},
	}

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd.Name(), configPath, os.Stderr, func(ctx context.Context, _ *config.AppConfig, a *app, _ *slog.Logger) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.svc.Answer(ctx, strings.Join(args, " ")))
				return nil
			})
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question loop in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			logFile, err := os.CreateTemp("", "docqa-chat-*.log")
			if err != nil {
				return err
			}
			defer logFile.Close()
			return withApp(cmd.Context(), cmd.Name(), configPath, logFile, func(ctx context.Context, _ *config.AppConfig, a *app, _ *slog.Logger) error {
				summary := "Using the existing index."
				if !a.svc.Ready(ctx) {
					summary = "No index yet. Run `rag ingest` first."
				}
				_, err := tea.NewProgram(tui.New(ctx, a.svc, summary), tea.WithAltScreen()).Run()
				return err
			})
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a YAML file (default config.yaml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			return writeConfig(configPath, path, force, cmd.OutOrStdout())
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, chatCmd, initCmd)
	return rootCmd
}

type runFunc func(ctx context.Context, cfg *config.AppConfig, a *app, logger *slog.Logger) error

// withApp loads config, sets up logging and tracing, builds the app and runs fn
// under a span named after the command.
func withApp(ctx context.Context, name, configPath string, logOut *os.File, fn runFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	warn(cfg)

	logger := newLogger(cfg.Log, logOut)
	slog.SetDefault(logger)

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutCtx); err != nil {
			logger.Warn("tracer shutdown", "err", err)
		}
	}()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, span := tp.Tracer().Start(ctx, "cli."+name)
	defer span.End()
	err = fn(ctx, cfg, a, logger)
	observability.RecordError(span, err)
	return err
}

func runServe(ctx context.Context, cfg *config.AppConfig, a *app, logger *slog.Logger) error {
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.NewHandler(a.svc, logger, httpapi.Options{
			CORSOrigins: cfg.Server.CORSOrigins,
			ServiceName: cfg.Tracing.ServiceName,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // ingest embeds the whole document
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
