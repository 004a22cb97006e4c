// Package archive persists the raw bytes of processed sitemap documents
// to a blob store so they can be replayed or inspected after the fact.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// Archiver stores sitemap payloads content-addressed by digest. Objects
// are keyed as <prefix>/<host>/<digest>, so re-fetching an unchanged
// sitemap overwrites the same object instead of accumulating copies.
type Archiver struct {
	store  pipeline.BlobStore
	hasher pipeline.Hasher
	prefix string
	logger *zap.Logger
}

// New creates an Archiver writing under prefix.
func New(store pipeline.BlobStore, hasher pipeline.Hasher, prefix string, logger *zap.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "sitemaps"
	}
	return &Archiver{store: store, hasher: hasher, prefix: prefix, logger: logger}, nil
}

// Archive writes the item's content to the blob store and returns the
// stored object's URI.
func (a *Archiver) Archive(ctx context.Context, item pipeline.WorkItem) (string, error) {
	digest, err := a.hasher.Hash(item.Content)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	contentType := ""
	if item.Metadata != nil {
		contentType = item.Metadata.FirstValue(pipeline.KeyContentType)
	}
	path := fmt.Sprintf("%s/%s/%s", a.prefix, hostOf(item.URL), digest)
	uri, err := a.store.PutObject(ctx, path, contentType, bytes.NewReader(item.Content))
	if err != nil {
		return "", fmt.Errorf("store object %s: %w", path, err)
	}
	a.logger.Debug("archived sitemap",
		zap.String("url", item.URL),
		zap.String("uri", uri),
		zap.Int("bytes", len(item.Content)),
	)
	return uri, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
