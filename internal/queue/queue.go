// Package queue defines the delivery substrate contract for the stage.
// This abstraction keeps the stage independent of a specific broker
// (in-memory for development, GCP Pub/Sub in production) while preserving
// the at-least-once + explicit-ack model.
package queue

import (
	"context"
	"errors"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// ErrClosed is returned by Next once a source has shut down.
var ErrClosed = errors.New("queue source closed")

// Source hands out deliveries one at a time. Each delivery must be
// acknowledged exactly once by the consumer; unacknowledged deliveries
// are redelivered by brokers that support it.
type Source interface {
	// Next blocks until a delivery is available, the context ends, or the
	// source is closed (ErrClosed).
	Next(ctx context.Context) (pipeline.Delivery, error)

	// Close stops delivery and releases broker resources.
	Close() error
}
