package sitemap

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// Extractor walks a parsed Document and turns its entries into outlinks:
// absolute resolution, modification-date cutoff, URL-filter chain,
// metadata inheritance, isSitemap tagging. Per-entry failures skip the
// entry and never abort the extraction.
type Extractor struct {
	urlFilters  []pipeline.URLFilter
	transfer    pipeline.MetadataTransfer
	clock       pipeline.Clock
	maxAgeHours int
	logger      *zap.Logger
}

// ExtractorParams collects the Extractor collaborators.
type ExtractorParams struct {
	URLFilters []pipeline.URLFilter
	Transfer   pipeline.MetadataTransfer
	Clock      pipeline.Clock
	// FilterHoursSinceModified prunes entries whose lastmod is older than
	// now minus this many hours; negative disables the cutoff.
	FilterHoursSinceModified int
	Logger                   *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(p ExtractorParams) *Extractor {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Extractor{
		urlFilters:  p.URLFilters,
		transfer:    p.Transfer,
		clock:       p.Clock,
		maxAgeHours: p.FilterHoursSinceModified,
		logger:      p.Logger,
	}
}

// Extract produces the outlinks of doc in document order, using pageURL
// as the base for relative resolution and parent as the metadata source
// for inheritance. It is total over parsed documents: it always returns,
// possibly empty.
func (e *Extractor) Extract(pageURL string, doc *Document, parent *pipeline.Metadata) []pipeline.Outlink {
	base, err := url.Parse(pageURL)
	if err != nil {
		e.logger.Debug("unparseable base url", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	isSitemapTag := "false"
	if doc.IsIndex() {
		isSitemapTag = "true"
	}

	var cutoff time.Time
	if e.maxAgeHours >= 0 {
		cutoff = e.clock.Now().Add(-time.Duration(e.maxAgeHours) * time.Hour)
	}

	outlinks := make([]pipeline.Outlink, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		target, err := resolveTarget(base, entry.Target)
		if err != nil {
			e.logger.Debug("skipping unresolvable entry",
				zap.String("base", pageURL), zap.String("target", entry.Target), zap.Error(err))
			continue
		}

		// Stale entries are pruned before any external filter runs.
		// Entries without a lastmod are never pruned.
		if e.maxAgeHours >= 0 && entry.LastModified != nil && entry.LastModified.Before(cutoff) {
			e.logger.Info("entry modified too long ago",
				zap.String("target", target),
				zap.Time("last_modified", *entry.LastModified),
				zap.Int("max_age_hours", e.maxAgeHours))
			continue
		}

		target = e.filterTarget(base, parent, target)
		if strings.TrimSpace(target) == "" {
			continue
		}

		md := e.outlinkMetadata(target, pageURL, parent)
		md.SetValue(pipeline.KeyIsSitemap, isSitemapTag)
		outlinks = append(outlinks, pipeline.Outlink{Target: target, Metadata: md})
		e.logger.Debug("sitemap outlink", zap.String("url", pageURL), zap.String("target", target))
	}
	return outlinks
}

func (e *Extractor) filterTarget(base *url.URL, parent *pipeline.Metadata, target string) string {
	for _, f := range e.urlFilters {
		target = f.Filter(base, parent, target)
		if strings.TrimSpace(target) == "" {
			return ""
		}
	}
	return target
}

func (e *Extractor) outlinkMetadata(target, source string, parent *pipeline.Metadata) *pipeline.Metadata {
	if e.transfer == nil {
		return pipeline.NewMetadata()
	}
	md := e.transfer.ForOutlink(target, source, parent)
	if md == nil {
		md = pipeline.NewMetadata()
	}
	return md
}

// resolveTarget resolves a sitemap entry against the fetched URL and
// returns the absolute form with any fragment dropped.
func resolveTarget(base *url.URL, target string) (string, error) {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return "", errors.New("empty loc")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}
	resolved := parsed
	if !parsed.IsAbs() {
		resolved = base.ResolveReference(parsed)
	}
	resolved.Fragment = ""
	if resolved.Scheme == "" || resolved.Host == "" {
		return "", errors.New("target did not resolve to an absolute url")
	}
	return resolved.String(), nil
}
