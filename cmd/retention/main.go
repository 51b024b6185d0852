// Package main is a one-shot audit retention run, intended for cron or a
// Kubernetes CronJob in deployments that prefer scheduled pruning over the
// API server's built-in retention loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sigaedu/siga/internal/audit"
	"github.com/sigaedu/siga/internal/config"
	"github.com/sigaedu/siga/internal/db"
	"github.com/sigaedu/siga/internal/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	days := flag.Int("days", 0, "retention horizon in days (0 uses RETENTION_DAYS)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("SIGA Audit Retention")
		fmt.Println()
		fmt.Println("Usage: retention [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required: in-memory stores have nothing to prune across runs")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	horizon := *days
	if horizon <= 0 {
		horizon = cfg.RetentionDays
	}

	store := audit.NewPostgresStore(conn, cfg.MaxAuditEntries)
	removed, err := audit.PruneByAge(ctx, store, horizon)
	if err != nil {
		logger.Error("retention run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("retention run complete", "removed", removed, "older_than_days", horizon)
}
