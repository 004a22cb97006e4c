package sitemap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
	"github.com/crawlkit/sitemap-stage/internal/progress"
)

// Archiver persists the raw bytes of items classified as sitemaps.
// Failures are logged, never fatal to the item.
type Archiver interface {
	Archive(ctx context.Context, item pipeline.WorkItem) (string, error)
}

// Params collects the Stage collaborators. Detector, Parser, Extractor,
// Main and Status are required; Archiver and Progress are optional.
type Params struct {
	Detector     *Detector
	Parser       *Parser
	Extractor    *Extractor
	ParseFilters []pipeline.ParseFilter
	Main         pipeline.MainEmitter
	Status       pipeline.StatusEmitter
	Archiver     Archiver
	Progress     progress.Emitter
	Logger       *zap.Logger
}

// Stage is the sitemap-processing stage driver. It is stateless across
// invocations; Process handles exactly one delivery to completion and may
// be called concurrently from multiple workers.
type Stage struct {
	detector     *Detector
	parser       *Parser
	extractor    *Extractor
	parseFilters []pipeline.ParseFilter
	main         pipeline.MainEmitter
	status       pipeline.StatusEmitter
	archiver     Archiver
	progress     progress.Emitter
	logger       *zap.Logger
}

// New creates a Stage.
func New(p Params) (*Stage, error) {
	if p.Detector == nil || p.Parser == nil || p.Extractor == nil {
		return nil, errors.New("detector, parser and extractor are required")
	}
	if p.Main == nil || p.Status == nil {
		return nil, errors.New("main and status emitters are required")
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Stage{
		detector:     p.Detector,
		parser:       p.Parser,
		extractor:    p.Extractor,
		parseFilters: p.ParseFilters,
		main:         p.Main,
		status:       p.Status,
		archiver:     p.Archiver,
		progress:     p.Progress,
		logger:       p.Logger,
	}, nil
}

// Process runs one delivery through the stage. Every path converges on
// exactly one acknowledgment, enforced by the deferred Ack; items are
// never left pending and never double-acked.
func (s *Stage) Process(ctx context.Context, d pipeline.Delivery) {
	defer d.Ack()

	start := time.Now()
	item := d.Item()
	if item.Metadata == nil {
		item.Metadata = pipeline.NewMetadata()
	}

	if !s.detector.IsSitemap(item.URL, item.Metadata, item.Content) {
		// Fast path: forward the item verbatim on the main channel.
		if err := s.main.EmitDocument(ctx, item); err != nil {
			s.logger.Error("main channel emit failed", zap.String("url", item.URL), zap.Error(err))
		}
		s.observe(progress.StagePassthrough, item, 0, start, "")
		return
	}

	s.archive(ctx, item)

	outlinks, err := s.parseAndExtract(item)
	if err != nil {
		s.failItem(ctx, item, errorSourceParsing, err, progress.StageParseError, start)
		return
	}

	result := &pipeline.ExtractionResult{Outlinks: outlinks, Metadata: item.Metadata}
	if err := s.runParseFilters(item, result); err != nil {
		// All-or-nothing: candidates extracted so far are discarded.
		s.failItem(ctx, item, errorSourceFiltering, err, progress.StageFilterError, start)
		return
	}

	for _, ol := range result.Outlinks {
		s.emitStatus(ctx, pipeline.StatusEvent{URL: ol.Target, Metadata: ol.Metadata, Status: pipeline.StatusDiscovered})
	}
	// The original URL is marked FETCHED however many outlinks survived;
	// a sitemap with zero usable links is still a successful parse.
	s.emitStatus(ctx, pipeline.StatusEvent{URL: item.URL, Metadata: item.Metadata, Status: pipeline.StatusFetched})
	s.observe(progress.StageExtracted, item, len(result.Outlinks), start, "")
}

// parseAndExtract covers the parse and extraction phase. Panics out of
// URL filters or metadata transfer are converted to a parse error so the
// stage process never crashes on a misbehaving plugin.
func (s *Stage) parseAndExtract(item pipeline.WorkItem) (outlinks []pipeline.Outlink, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ParseError{URL: item.URL, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	doc, err := s.parser.Parse(item.URL, item.Content, item.Metadata.FirstValue(pipeline.KeyContentType))
	if err != nil {
		return nil, err
	}
	return s.extractor.Extract(item.URL, doc, item.Metadata), nil
}

func (s *Stage) runParseFilters(item pipeline.WorkItem, result *pipeline.ExtractionResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FilterError{URL: item.URL, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	for _, f := range s.parseFilters {
		if ferr := f.Filter(item.URL, item.Content, result); ferr != nil {
			return &FilterError{URL: item.URL, Err: ferr}
		}
	}
	return nil
}

func (s *Stage) failItem(
	ctx context.Context,
	item pipeline.WorkItem,
	source string,
	err error,
	stage progress.Stage,
	start time.Time,
) {
	s.logger.Error("sitemap processing failed",
		zap.String("url", item.URL), zap.String("source", source), zap.Error(err))
	item.Metadata.SetValue(pipeline.KeyErrorSource, source)
	item.Metadata.SetValue(pipeline.KeyErrorMessage, err.Error())
	s.emitStatus(ctx, pipeline.StatusEvent{URL: item.URL, Metadata: item.Metadata, Status: pipeline.StatusError})
	s.observe(stage, item, 0, start, err.Error())
}

func (s *Stage) emitStatus(ctx context.Context, evt pipeline.StatusEvent) {
	if err := s.status.EmitStatus(ctx, evt); err != nil {
		s.logger.Error("status channel emit failed",
			zap.String("url", evt.URL), zap.String("status", string(evt.Status)), zap.Error(err))
	}
}

func (s *Stage) archive(ctx context.Context, item pipeline.WorkItem) {
	if s.archiver == nil {
		return
	}
	if _, err := s.archiver.Archive(ctx, item); err != nil {
		s.logger.Warn("sitemap archive failed", zap.String("url", item.URL), zap.Error(err))
	}
}

func (s *Stage) observe(stage progress.Stage, item pipeline.WorkItem, outlinks int, start time.Time, note string) {
	if s.progress == nil {
		return
	}
	s.progress.Emit(progress.Event{
		TS:       time.Now().UTC(),
		Stage:    stage,
		Site:     progress.SiteOf(item.URL),
		URL:      item.URL,
		Outlinks: int64(outlinks),
		Bytes:    int64(len(item.Content)),
		Dur:      time.Since(start),
		Note:     note,
	})
}
