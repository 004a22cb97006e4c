package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlkit/sitemap-stage/internal/app"
	"github.com/crawlkit/sitemap-stage/internal/config"
)

func TestNew_MemoryProviders(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestNew_MemoryArchive(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Archive.Provider = "memory"

	_, err = app.New(context.Background(), cfg, zap.NewNop())
	assert.NoError(t, err)
}

func TestNew_LocalArchive(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Archive.Provider = "local"
	cfg.Archive.Local.BaseDir = t.TempDir()

	_, err = app.New(context.Background(), cfg, zap.NewNop())
	assert.NoError(t, err)
}

func TestNew_BadProvider(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Queue.Provider = "bogus"

	_, err = app.New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
