package filters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlkit/sitemap-stage/internal/filters"
	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

func TestTransfer_CopiesConfiguredKeys(t *testing.T) {
	parent := pipeline.NewMetadata()
	parent.SetValue("crawl.id", "42")
	parent.AddValue("tags", "news")
	parent.AddValue("tags", "economy")
	parent.SetValue("secret", "do not copy")

	tr := filters.NewTransfer([]string{"crawl.id", "tags"}, false)
	md := tr.ForOutlink("https://example.com/a", "https://example.com/sitemap.xml", parent)

	require.NotNil(t, md)
	assert.Equal(t, "42", md.FirstValue("crawl.id"))
	assert.Equal(t, []string{"news", "economy"}, md.Values("tags"))
	assert.Empty(t, md.FirstValue("secret"))
}

func TestTransfer_TrackDepth(t *testing.T) {
	tr := filters.NewTransfer(nil, true)

	md := tr.ForOutlink("https://example.com/a", "https://example.com/sitemap.xml", pipeline.NewMetadata())
	assert.Equal(t, "1", md.FirstValue("depth"))

	parent := pipeline.NewMetadata()
	parent.SetValue("depth", "3")
	md = tr.ForOutlink("https://example.com/a", "https://example.com/sitemap.xml", parent)
	assert.Equal(t, "4", md.FirstValue("depth"))
}

func TestTransfer_NeverAliasesParent(t *testing.T) {
	parent := pipeline.NewMetadata()
	parent.SetValue("crawl.id", "42")

	tr := filters.NewTransfer([]string{"crawl.id"}, false)
	md := tr.ForOutlink("https://example.com/a", "https://example.com/sitemap.xml", parent)
	md.SetValue("crawl.id", "changed")

	assert.Equal(t, "42", parent.FirstValue("crawl.id"))
}
