// Command sitemapstage runs the sitemap-processing stage: it consumes
// fetched documents from the queue, expands sitemaps into discovered
// outlinks, and republishes everything else untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/crawlkit/sitemap-stage/internal/app"
	"github.com/crawlkit/sitemap-stage/internal/config"
	"github.com/crawlkit/sitemap-stage/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sitemapstage: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional, env vars apply on top)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}

	logger.Info("sitemap stage starting",
		zap.Int("workers", cfg.Workers.Count),
		zap.String("queue", cfg.Queue.Provider),
		zap.String("emitter", cfg.Emitter.Provider),
	)
	return a.Run(ctx)
}
