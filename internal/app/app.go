// Package app assembles the long-lived services of the sitemap stage and
// runs them to completion. It is the only place that knows about concrete
// providers; everything downstream works against interfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/crawlkit/sitemap-stage/internal/api"
	"github.com/crawlkit/sitemap-stage/internal/archive"
	"github.com/crawlkit/sitemap-stage/internal/clock/system"
	"github.com/crawlkit/sitemap-stage/internal/config"
	"github.com/crawlkit/sitemap-stage/internal/dispatcher"
	"github.com/crawlkit/sitemap-stage/internal/filters"
	"github.com/crawlkit/sitemap-stage/internal/hash/sha256"
	idgen "github.com/crawlkit/sitemap-stage/internal/id/uuid"
	"github.com/crawlkit/sitemap-stage/internal/pipeline"
	"github.com/crawlkit/sitemap-stage/internal/progress"
	"github.com/crawlkit/sitemap-stage/internal/progress/sinks"
	pubmem "github.com/crawlkit/sitemap-stage/internal/publisher/memory"
	pubgcp "github.com/crawlkit/sitemap-stage/internal/publisher/pubsub"
	"github.com/crawlkit/sitemap-stage/internal/queue"
	queuemem "github.com/crawlkit/sitemap-stage/internal/queue/memory"
	queuegcp "github.com/crawlkit/sitemap-stage/internal/queue/pubsub"
	"github.com/crawlkit/sitemap-stage/internal/sitemap"
	storegcs "github.com/crawlkit/sitemap-stage/internal/storage/gcs"
	storelocal "github.com/crawlkit/sitemap-stage/internal/storage/local"
	storemem "github.com/crawlkit/sitemap-stage/internal/storage/memory"
	"github.com/crawlkit/sitemap-stage/internal/worker"
)

// App holds the assembled services of a running stage instance.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	source   queue.Source
	hub      *progress.Hub
	registry *prometheus.Registry
	disp     *dispatcher.Dispatcher
	server   *http.Server
	closers  []func() error

	pubsubSource *queuegcp.Source
}

// New builds every service from configuration, failing fast when any
// provider cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.registry = registry

	source, err := a.buildSource(ctx)
	if err != nil {
		return nil, err
	}
	a.source = source
	a.closers = append(a.closers, source.Close)

	main, status, err := a.buildEmitters(ctx)
	if err != nil {
		return nil, err
	}

	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
	)

	urlFilters, err := buildURLFilters(cfg.Filters.URL)
	if err != nil {
		return nil, err
	}
	detector := sitemap.NewDetector(cfg.Sitemap.SniffContent, logger)
	parser := sitemap.NewParser(cfg.Sitemap.StrictParsing)
	extractor := sitemap.NewExtractor(sitemap.ExtractorParams{
		URLFilters:               urlFilters,
		Transfer:                 filters.NewTransfer(cfg.Metadata.Transfer, cfg.Metadata.TrackDepth),
		Clock:                    system.New(),
		FilterHoursSinceModified: cfg.Sitemap.FilterHoursSinceModified,
		Logger:                   logger,
	})

	stage, err := sitemap.New(sitemap.Params{
		Detector:     detector,
		Parser:       parser,
		Extractor:    extractor,
		ParseFilters: buildParseFilters(cfg.Filters.Parse),
		Main:         main,
		Status:       status,
		Archiver:     archiver,
		Progress:     a.hub,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build stage: %w", err)
	}

	workers := make([]*worker.Worker, cfg.Workers.Count)
	for i := range workers {
		workers[i] = worker.New(source, stage, logger)
	}
	a.disp = dispatcher.New(workers)

	srv := api.NewServer(api.Params{
		Detector:  detector,
		Parser:    parser,
		Extractor: extractor,
		Registry:  registry,
		Logger:    logger,
		IDs:       idgen.NewUUIDGenerator(),
	})
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and the worker pool and blocks until the
// context is canceled, then shuts everything down in dependency order.
func (a *App) Run(ctx context.Context) error {
	if a.pubsubSource != nil {
		a.pubsubSource.Start(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("ops server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		a.disp.Run(ctx)
		close(done)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("ops server shutdown failed", zap.Error(err))
	}
	<-done
	if err := a.hub.Close(shutdownCtx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("service close failed", zap.Error(err))
		}
	}
	return nil
}

func (a *App) buildSource(ctx context.Context) (queue.Source, error) {
	switch a.cfg.Queue.Provider {
	case "memory":
		a.logger.Info("using in-memory queue", zap.Int("depth", a.cfg.Queue.Depth))
		return queuemem.NewQueue(a.cfg.Queue.Depth), nil
	case "pubsub":
		gcp := a.cfg.Queue.GCP
		a.logger.Info("using pubsub queue", zap.String("subscription", gcp.SubscriptionID))
		src, err := queuegcp.New(ctx, gcp.ProjectID, gcp.SubscriptionID, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build pubsub source: %w", err)
		}
		a.pubsubSource = src
		return src, nil
	default:
		return nil, fmt.Errorf("unknown queue provider %q", a.cfg.Queue.Provider)
	}
}

func (a *App) buildEmitters(ctx context.Context) (pipeline.MainEmitter, pipeline.StatusEmitter, error) {
	switch a.cfg.Emitter.Provider {
	case "memory":
		a.logger.Info("using in-memory emitters; emissions will not leave the process")
		pub := pubmem.New()
		return pub, pub, nil
	case "pubsub":
		gcp := a.cfg.Emitter.GCP
		a.logger.Info("using pubsub emitters",
			zap.String("main_topic", gcp.MainTopic),
			zap.String("status_topic", gcp.StatusTopic),
		)
		pub, err := pubgcp.New(ctx, gcp.ProjectID, gcp.MainTopic, gcp.StatusTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("build pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		return pub, pub, nil
	default:
		return nil, nil, fmt.Errorf("unknown emitter provider %q", a.cfg.Emitter.Provider)
	}
}

func (a *App) buildArchiver(ctx context.Context) (sitemap.Archiver, error) {
	var store pipeline.BlobStore
	switch a.cfg.Archive.Provider {
	case "noop":
		a.logger.Info("sitemap archiving disabled")
		return nil, nil
	case "memory":
		store = storemem.NewBlobStore()
	case "local":
		s, err := storelocal.New(storelocal.Config{BaseDir: a.cfg.Archive.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("build local blob store: %w", err)
		}
		store = s
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		s, err := storegcs.New(client, storegcs.Config{Bucket: a.cfg.Archive.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("build gcs blob store: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown archive provider %q", a.cfg.Archive.Provider)
	}
	a.logger.Info("sitemap archiving enabled",
		zap.String("provider", a.cfg.Archive.Provider),
		zap.String("prefix", a.cfg.Archive.Prefix),
	)
	return archive.New(store, sha256.New(), a.cfg.Archive.Prefix, a.logger)
}

func buildURLFilters(cfg config.URLFiltersConfig) ([]pipeline.URLFilter, error) {
	var chain []pipeline.URLFilter
	if b := filters.NewHostBlocklist(cfg.DenyHosts); b != nil {
		chain = append(chain, b)
	}
	if len(cfg.Include) > 0 || len(cfg.Exclude) > 0 {
		p, err := filters.NewPattern(cfg.Include, cfg.Exclude)
		if err != nil {
			return nil, fmt.Errorf("build pattern filter: %w", err)
		}
		chain = append(chain, p)
	}
	if cfg.Normalize {
		chain = append(chain, filters.NewNormalizer())
	}
	if cfg.MaxLength > 0 {
		chain = append(chain, filters.NewMaxLength(cfg.MaxLength))
	}
	return chain, nil
}

func buildParseFilters(cfg config.ParseFiltersConfig) []pipeline.ParseFilter {
	var chain []pipeline.ParseFilter
	if cfg.Dedupe {
		chain = append(chain, filters.NewDedupeOutlinks())
	}
	if cfg.MaxOutlinks > 0 {
		chain = append(chain, filters.NewMaxOutlinks(cfg.MaxOutlinks))
	}
	return chain
}
