package filters

import (
	"strconv"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// depthKey tracks how many hops separate an outlink from its seed.
const depthKey = "depth"

// Transfer is the default metadata-inheritance policy: it copies the
// configured keys from the parent's metadata onto each outlink and can
// optionally maintain a depth counter.
type Transfer struct {
	keys       []string
	trackDepth bool
}

// NewTransfer creates a Transfer inheriting the given keys.
func NewTransfer(keys []string, trackDepth bool) *Transfer {
	return &Transfer{keys: append([]string(nil), keys...), trackDepth: trackDepth}
}

// ForOutlink implements pipeline.MetadataTransfer. The returned Metadata
// is always a fresh instance; the parent is never aliased.
func (t *Transfer) ForOutlink(_, _ string, parent *pipeline.Metadata) *pipeline.Metadata {
	md := pipeline.NewMetadata()
	for _, key := range t.keys {
		for _, value := range parent.Values(key) {
			md.AddValue(key, value)
		}
	}
	if t.trackDepth {
		depth := 0
		if parsed, err := strconv.Atoi(parent.FirstValue(depthKey)); err == nil {
			depth = parsed
		}
		md.SetValue(depthKey, strconv.Itoa(depth+1))
	}
	return md
}
