// Package worker implements the consume loop that drives the sitemap stage.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/crawlkit/sitemap-stage/internal/queue"
	"github.com/crawlkit/sitemap-stage/internal/sitemap"
)

// Worker pulls deliveries from the source and runs each through the stage.
// Processing is synchronous per delivery, so item order within one worker
// is preserved end to end.
type Worker struct {
	source queue.Source
	stage  *sitemap.Stage
	logger *zap.Logger
}

// New constructs a Worker.
func New(source queue.Source, stage *sitemap.Stage, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{source: source, stage: stage, logger: logger}
}

// Run blocks, consuming deliveries until the context finishes or the
// source is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		d, err := w.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("next delivery failed", zap.Error(err))
			continue
		}
		w.stage.Process(ctx, d)
	}
}
