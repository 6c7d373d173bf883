package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Dosada05/battle-tournament/config"
	"github.com/Dosada05/battle-tournament/db"
	"github.com/Dosada05/battle-tournament/repositories"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

const dbConnectTimeout = 5 * time.Second

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to read .env", slog.Any("error", err))
	}

	rootCmd := &cobra.Command{
		Use:           "battle-tournament",
		Short:         "Dance battle tournament progression engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), seedCmd(), advanceCmd(), hashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// openStore подключает Postgres и применяет миграции. При memory=true
// возвращает хранилище в памяти и nil вместо соединения.
func openStore(ctx context.Context, cfg *config.Config, memory bool) (*repositories.Repositories, *sql.DB, error) {
	if memory {
		logger.Warn("using in-memory storage, state is lost on exit")
		return repositories.NewMemoryRepositories(), nil, nil
	}

	conn, err := db.Connect(cfg.DatabaseURL, dbConnectTimeout, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	applied, err := db.Migrate(ctx, conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("database ready", slog.Int("migrations_applied", applied))
	return repositories.NewPostgresRepositories(conn), conn, nil
}

func closeDB(conn *sql.DB) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		logger.Error("failed to close database connection", slog.Any("error", err))
	} else {
		logger.Info("database connection closed")
	}
}
