package sinks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/crawlkit/sitemap-stage/internal/progress"
	"github.com/crawlkit/sitemap-stage/internal/progress/sinks"
)

func TestLogSink_Consume(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := sinks.NewLogSink(zap.New(core))

	batch := []progress.Event{
		{
			TS:       time.Now().UTC(),
			Stage:    progress.StageExtracted,
			Site:     "example.com",
			URL:      "https://example.com/sitemap.xml",
			Outlinks: 3,
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "item processed", entries[0].Message)
}
