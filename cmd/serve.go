package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/config"
	"github.com/Dosada05/battle-tournament/handlers"
	"github.com/Dosada05/battle-tournament/routes"
	"github.com/Dosada05/battle-tournament/services"
	"github.com/Dosada05/battle-tournament/storage"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(memory)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "keep state in memory instead of PostgreSQL")
	return cmd
}

func runServer(memory bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(!memory)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	repos, conn, err := openStore(ctx, cfg, memory)
	if err != nil {
		return err
	}
	defer closeDB(conn)

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket Hub started")

	publisher, err := newPublisher(ctx, cfg, wsHub)
	if err != nil {
		return err
	}

	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		return err
	}

	engine := services.NewEngine(repos, publisher, archiver, logger)
	logger.Info("Services initialized")

	authHandler := handlers.NewAuthHandler(cfg.StaffPasswordHash, cfg.JWTSecretKey, cfg.TokenTTL, logger)
	tournamentHandler := handlers.NewTournamentHandler(engine)
	contestHandler := handlers.NewContestHandler(engine)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, engine.Registration, logger)

	router := chi.NewRouter()
	routes.SetupRoutes(router,
		routes.Options{
			JWTSecret:      cfg.JWTSecretKey,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			Logger:         logger,
		},
		authHandler,
		tournamentHandler,
		contestHandler,
		webSocketHandler,
	)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server shutdown complete")
	}
	return nil
}

// newPublisher выбирает доставку событий: через Redis между инстансами
// или напрямую в локальный Hub.
func newPublisher(ctx context.Context, cfg *config.Config, hub *brackets.Hub) (services.EventPublisher, error) {
	if cfg.RedisURL == "" {
		return services.NewHubPublisher(hub), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	relay := services.NewRedisRelay(client, hub, logger)
	go func() {
		defer client.Close()
		if err := relay.Run(ctx); err != nil {
			logger.Error("redis relay stopped", slog.Any("error", err))
		}
	}()
	logger.Info("redis event relay started", slog.String("channel", services.EventsChannel))
	return relay, nil
}

func newArchiver(ctx context.Context, cfg *config.Config) (services.Archiver, error) {
	r2 := storage.CloudflareR2Config{
		AccountID:       cfg.R2.AccountID,
		AccessKeyID:     cfg.R2.AccessKeyID,
		SecretAccessKey: cfg.R2.SecretAccessKey,
		BucketName:      cfg.R2.BucketName,
		PublicBaseURL:   cfg.R2.PublicBaseURL,
	}
	if !r2.Enabled() {
		logger.Info("R2 is not configured, completed tournaments are not archived")
		return nil, nil
	}
	uploader, err := storage.NewCloudflareR2Uploader(ctx, r2, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
	}
	logger.Info("Cloudflare R2 archiver initialized", slog.String("bucket", r2.BucketName))
	return storage.NewTournamentArchiver(uploader, "archives"), nil
}
