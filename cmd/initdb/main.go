// Command initdb creates the books, users and rentals tables.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"library-rental/internal/config"
	"library-rental/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, pool, err := database.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("initializing database")
	if err := database.Migrate(db.WithContext(ctx)); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("database initialized")
}
