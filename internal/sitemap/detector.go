package sitemap

import (
	"bytes"
	"strconv"

	"go.uber.org/zap"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// namespaceClue is the literal sitemap XML namespace URI searched for when
// sniffing. Sniffing only works for uncompressed XML documents.
var namespaceClue = []byte("http://www.sitemaps.org/schemas/sitemap/0.9")

// sniffWindow bounds how many leading bytes are inspected.
const sniffWindow = 200

// Detector decides whether a work item is a sitemap. The isSitemap
// metadata flag is authoritative; content sniffing is an optional
// fallback.
type Detector struct {
	sniffContent bool
	logger       *zap.Logger
}

// NewDetector creates a Detector.
func NewDetector(sniffContent bool, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{sniffContent: sniffContent, logger: logger}
}

// IsSitemap reports whether the item should be parsed as a sitemap.
func (d *Detector) IsSitemap(pageURL string, md *pipeline.Metadata, content []byte) bool {
	if flagged, err := strconv.ParseBool(md.FirstValue(pipeline.KeyIsSitemap)); err == nil && flagged {
		return true
	}
	if !d.sniffContent {
		return false
	}
	window := content
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	if bytes.Contains(window, namespaceClue) {
		d.logger.Info("detected as sitemap based on content", zap.String("url", pageURL))
		return true
	}
	return false
}
