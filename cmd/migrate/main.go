package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/qmsuite/correlative/internal/config"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/postgres"
	"github.com/qmsuite/correlative/migrations"
)

func main() {
	// Parse command line flags
	timeout := flag.Duration("timeout", 2*time.Minute, "Maximum time the migration may take")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-timeout 2m] up|down|status\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	provider, err := migrations.NewProvider(db.DB.DB)
	if err != nil {
		logger.Fatalw("Failed to create migration provider", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			logger.Fatalw("Failed to apply migrations", "error", err)
		}
		for _, r := range results {
			logger.Infow("Applied migration", "version", r.Source.Version, "duration", r.Duration)
		}
		logger.Infow("Migration completed successfully", "applied", len(results))
	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			logger.Fatalw("Failed to roll back migration", "error", err)
		}
		if result != nil {
			logger.Infow("Rolled back migration", "version", result.Source.Version)
		}
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			logger.Fatalw("Failed to read migration status", "error", err)
		}
		for _, s := range statuses {
			fmt.Printf("%-6d %-10s %s\n", s.Source.Version, s.State, s.Source.Path)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}
