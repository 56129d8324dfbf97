package commands

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

	"github.com/spf13/cobra"

	"sqlcoach/internal/api"
	"sqlcoach/internal/coach"
	"sqlcoach/internal/config"
	"sqlcoach/internal/llm"
	"sqlcoach/internal/metrics"
	"sqlcoach/internal/practice"
	"sqlcoach/internal/sandbox"
	"sqlcoach/internal/server"
	"sqlcoach/internal/session"
	"sqlcoach/internal/storage"
	"sqlcoach/web"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	logConfig(logger, cfg)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close history store", "err", err)
			}
		}()
	}

	client, err := llm.NewClient(llm.Options{
		BaseURL:      cfg.LLMBaseURL,
		APIKey:       cfg.LLMAPIKey,
		Model:        cfg.LLMModel,
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
		Timeout:      cfg.LLMTimeout,
		RetryMax:     cfg.LLMRetryMax,
		RetryBackoff: cfg.LLMRetryBackoff,
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}
	if cfg.LLMAPIKey == "" {
		logger.Warn("no LLM API key configured, coach actions will fail until one is set")
	}

	var health *llm.HealthChecker
	if cfg.Features().Health {
		health = llm.NewHealthChecker(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.HealthCheckInterval, cfg.HealthCheckTimeout, m, logger)
		defer health.Stop()
	}

	sb := sandbox.New(sandbox.Options{
		Timeout: cfg.SandboxTimeout,
		MaxRows: cfg.SandboxMaxRows,
		Metrics: m,
		Logger:  logger,
	})

	questions, err := practice.LoadBank(cfg.PracticeBank)
	if err != nil {
		return fmt.Errorf("load practice questions: %w", err)
	}

	var apiSrv *api.Server
	if cfg.Features().API {
		apiSrv = api.NewServer(store, cfg, logger)
	}

	assets, err := web.Assets()
	if err != nil {
		return fmt.Errorf("load web assets: %w", err)
	}

	h := server.New(server.Deps{
		Config:   cfg,
		Coach:    coach.New(llm.NewCache(client, cfg.LLMModel, cfg.LLMCacheTTL, m), logger),
		Sandbox:  sb,
		Practice: practice.NewService(questions, sb),
		Sessions: session.NewStore(cfg.SessionTTL, m.UpdateSessions),
		Store:    store,
		API:      apiSrv,
		Metrics:  m,
		Health:   health,
		Assets:   assets,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting sqlcoach", "listen", cfg.ListenAddr, "model", client.Model(), "questions", len(questions))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		logger.Error("server error", "err", err)
		return err
	case <-sigCtx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns nil when history is off.
func openStore(cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		s, err := storage.NewSQLiteStore(cfg.StoragePath, cfg.StorageMaxRows, logger)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		return s, nil
	case config.StorageMemory:
		return storage.NewMemoryStore(cfg.StorageMaxRows), nil
	default:
		return nil, nil
	}
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("configuration",
		"listen_addr", cfg.ListenAddr,
		"storage", string(cfg.Storage),
		"storage_path", cfg.StoragePath,
		"storage_max_rows", cfg.StorageMaxRows,
		"llm_base_url", cfg.LLMBaseURL,
		"llm_model", cfg.LLMModel,
		"llm_api_key_set", cfg.LLMAPIKey != "",
		"llm_timeout", cfg.LLMTimeout,
		"llm_retry_max", cfg.LLMRetryMax,
		"llm_cache_ttl", cfg.LLMCacheTTL,
		"sandbox_timeout", cfg.SandboxTimeout,
		"sandbox_max_rows", cfg.SandboxMaxRows,
		"practice_bank", cfg.PracticeBank,
		"session_ttl", cfg.SessionTTL,
		"request_body_max_bytes", cfg.RequestBodyMaxBytes,
		"cors_allow_origin", cfg.CORSAllowOrigin,
		"metrics_enabled", cfg.MetricsEnabled,
		"log_level", cfg.LogLevel,
	)
}
