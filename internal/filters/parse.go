package filters

import (
	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// MaxOutlinks caps the number of outlinks kept from a single document,
// preserving document order. A limit <= 0 disables the cap.
type MaxOutlinks struct {
	limit int
}

// NewMaxOutlinks creates a MaxOutlinks parse filter.
func NewMaxOutlinks(limit int) *MaxOutlinks {
	return &MaxOutlinks{limit: limit}
}

// Filter implements pipeline.ParseFilter.
func (f *MaxOutlinks) Filter(_ string, _ []byte, result *pipeline.ExtractionResult) error {
	if f.limit > 0 && len(result.Outlinks) > f.limit {
		result.Outlinks = result.Outlinks[:f.limit]
	}
	return nil
}

// DedupeOutlinks collapses repeated targets within one document, keeping
// the first occurrence.
type DedupeOutlinks struct{}

// NewDedupeOutlinks creates a DedupeOutlinks parse filter.
func NewDedupeOutlinks() *DedupeOutlinks {
	return &DedupeOutlinks{}
}

// Filter implements pipeline.ParseFilter.
func (DedupeOutlinks) Filter(_ string, _ []byte, result *pipeline.ExtractionResult) error {
	seen := make(map[string]struct{}, len(result.Outlinks))
	kept := result.Outlinks[:0]
	for _, ol := range result.Outlinks {
		if _, dup := seen[ol.Target]; dup {
			continue
		}
		seen[ol.Target] = struct{}{}
		kept = append(kept, ol)
	}
	result.Outlinks = kept
	return nil
}
