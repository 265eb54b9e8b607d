package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sunshineDad/poping/db"
	"github.com/sunshineDad/poping/internal/agent"
	"github.com/sunshineDad/poping/internal/api"
	"github.com/sunshineDad/poping/internal/auth"
	"github.com/sunshineDad/poping/internal/catalog"
	"github.com/sunshineDad/poping/internal/chat"
	"github.com/sunshineDad/poping/internal/config"
	"github.com/sunshineDad/poping/internal/database"
	"github.com/sunshineDad/poping/internal/dataset"
	"github.com/sunshineDad/poping/internal/log"
	"github.com/sunshineDad/poping/internal/provider"
	"github.com/sunshineDad/poping/internal/session"
	"github.com/sunshineDad/poping/internal/transcript"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	probeTimeout      = 15 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // long-poll and WebSocket upgrades need headroom
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes all components and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{JSON: true})
	logger.Info("starting poping", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	transcripts := transcript.NewStore(pool)
	sessions := session.NewStore(pool)
	agents := agent.NewStore(pool)
	users := auth.NewStore(pool)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, cfg.RefreshTokenTTL)

	completion := provider.NewCompletionClient(cfg.OpenAI, logger)
	streaming := provider.NewStreamingClient(cfg.AIGents, logger)

	chatService := chat.NewService(
		transcripts,
		sessions,
		agents,
		streaming,
		[]provider.Provider{completion, streaming},
		cfg.HistoryWindow,
		logger,
	)

	datasets := dataset.NewStore(pool)
	uploads, err := dataset.NewStorage(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("preparing upload storage: %w", err)
	}
	notifier := dataset.NewNotifier()
	processor := dataset.NewProcessor(datasets, notifier, logger)

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:         logger,
		ChatService:    chatService,
		SessionStore:   sessions,
		AgentStore:     agents,
		UserStore:      users,
		Tokens:         tokens,
		DatasetStore:   datasets,
		DatasetStorage: uploads,
		Processor:      processor,
		Notifier:       notifier,
		CatalogStore:   catalog.NewStore(pool),
		CatalogChecker: catalog.NewChecker(probeTimeout),
		Pool:           pool,
		CORSOrigins:    cfg.CORSOrigins,
		TrustProxy:     cfg.TrustProxy,
		RateBurst:      cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown error", "error", err)
		}
		if err := processor.Shutdown(shutdownCtx); err != nil {
			logger.Warn("processor shutdown error", "error", err)
		}
		return nil

	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
