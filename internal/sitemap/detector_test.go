package sitemap_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
	"github.com/crawlkit/sitemap-stage/internal/sitemap"
)

const sitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/a</loc></url>
</urlset>`

func TestDetector_MetadataFlag(t *testing.T) {
	d := sitemap.NewDetector(false, nil)

	md := pipeline.NewMetadata()
	md.SetValue(pipeline.KeyIsSitemap, "true")
	assert.True(t, d.IsSitemap("https://example.com/sitemap.xml", md, nil))

	md.SetValue(pipeline.KeyIsSitemap, "false")
	assert.False(t, d.IsSitemap("https://example.com/sitemap.xml", md, []byte(sitemapXML)))
}

func TestDetector_SniffDisabledByDefault(t *testing.T) {
	d := sitemap.NewDetector(false, nil)
	md := pipeline.NewMetadata()

	assert.False(t, d.IsSitemap("https://example.com/sitemap.xml", md, []byte(sitemapXML)))
}

func TestDetector_SniffFindsNamespace(t *testing.T) {
	d := sitemap.NewDetector(true, nil)
	md := pipeline.NewMetadata()

	assert.True(t, d.IsSitemap("https://example.com/sitemap.xml", md, []byte(sitemapXML)))
	assert.False(t, d.IsSitemap("https://example.com/page", md, []byte("<html><body>hi</body></html>")))
}

func TestDetector_SniffWindowIsBounded(t *testing.T) {
	d := sitemap.NewDetector(true, nil)
	md := pipeline.NewMetadata()

	// The namespace appears past the first 200 bytes, so it must not match.
	padded := strings.Repeat(" ", 300) + sitemapXML
	assert.False(t, d.IsSitemap("https://example.com/sitemap.xml", md, []byte(padded)))
}

func TestDetector_NilMetadata(t *testing.T) {
	d := sitemap.NewDetector(false, nil)
	assert.False(t, d.IsSitemap("https://example.com/page", nil, nil))
}
