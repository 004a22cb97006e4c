package pipeline

import (
	"context"
	"io"
	"net/url"
)

// MainEmitter forwards items on the main document channel. Only the
// passthrough (non-sitemap) path uses it.
type MainEmitter interface {
	EmitDocument(ctx context.Context, item WorkItem) error
}

// StatusEmitter sends status events on the control channel, kept distinct
// from the main document channel.
type StatusEmitter interface {
	EmitStatus(ctx context.Context, evt StatusEvent) error
}

// URLFilter validates or rewrites a candidate outlink target. base is the
// URL of the document the target came from. A blank return drops the
// candidate.
type URLFilter interface {
	Filter(base *url.URL, parent *Metadata, target string) string
}

// ParseFilter inspects or mutates an aggregate extraction result before
// emission. An error fails the whole item.
type ParseFilter interface {
	Filter(pageURL string, content []byte, result *ExtractionResult) error
}

// MetadataTransfer derives an outlink's metadata from its parent
// document's metadata and the two URLs.
type MetadataTransfer interface {
	ForOutlink(target, source string, parent *Metadata) *Metadata
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
