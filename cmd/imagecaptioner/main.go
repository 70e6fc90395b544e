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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/imagecaptioner/internal/caption"
	appcfg "github.com/jo-hoe/imagecaptioner/internal/config"
	"github.com/jo-hoe/imagecaptioner/internal/jobs"
	"github.com/jo-hoe/imagecaptioner/internal/llm"
	"github.com/jo-hoe/imagecaptioner/internal/llm/aiproxy"
	"github.com/jo-hoe/imagecaptioner/internal/llm/gemini"
	"github.com/jo-hoe/imagecaptioner/internal/llm/mock"
	"github.com/jo-hoe/imagecaptioner/internal/server"
	"github.com/jo-hoe/imagecaptioner/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cobra.CheckErr(newRootCmd().ExecuteContext(context.Background()))
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imagecaptioner",
		Short: "HTTP service that captions uploaded images with a multimodal model",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
	}

	var configPath string
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the caption server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $"+appcfg.EnvConfigPath+" or ./config.yaml)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)
	// Running the binary without a subcommand starts the server.
	rootCmd.RunE = serveCmd.RunE
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	return rootCmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := appcfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	level, _ := appcfg.ParseLogLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Request log
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// LLM client
	llmClient, model, err := newLLMClient(cfg)
	if err != nil {
		return err
	}

	// Temp file cleanup
	cleanup := jobs.NewCleanupQueue(logger, cfg.Server.CleanupQueueSize, cfg.Server.CleanupWorkers)
	if err := cleanup.Start(); err != nil {
		return fmt.Errorf("start cleanup queue: %w", err)
	}
	defer cleanup.Shutdown(cfg.Server.ShutdownGrace)

	svc := &server.Service{
		Log:       logger,
		Cfg:       cfg,
		Store:     store,
		Cleanup:   cleanup,
		Uploader:  storage.NewUploader(cfg.Server.StorageDir),
		Captioner: caption.NewGenerator(logger, llmClient, model),
	}
	httpSrv := server.NewHTTPServer(svc)

	rootCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info("http server starting",
			"address", cfg.Server.Addr,
			"provider", cfg.LLM.Provider,
			"model", model,
			"bodyLimit", cfg.Server.BodyLimit.String())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancelShutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

func openStore(cfg *appcfg.Config) (jobs.Store, error) {
	if cfg.Server.RequestLogPath == "" {
		return jobs.NopStore{}, nil
	}
	store, err := jobs.NewSQLiteStore(cfg.Server.RequestLogPath)
	if err != nil {
		return nil, fmt.Errorf("open request log: %w", err)
	}
	return store, nil
}

func newLLMClient(cfg *appcfg.Config) (llm.Client, string, error) {
	switch cfg.LLM.Provider {
	case appcfg.ProviderGemini:
		return gemini.New(cfg.LLM.Gemini), cfg.LLM.Gemini.Model, nil
	case appcfg.ProviderAIProxy:
		return aiproxy.New(cfg.LLM.AIProxy), cfg.LLM.AIProxy.Model, nil
	case appcfg.ProviderMock:
		return mock.New(cfg.LLM.Mock), appcfg.ProviderMock, nil
	default:
		return nil, "", fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
}
