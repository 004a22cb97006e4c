package sitemap_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
	"github.com/crawlkit/sitemap-stage/internal/sitemap"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type funcURLFilter func(string) string

func (f funcURLFilter) Filter(_ *url.URL, _ *pipeline.Metadata, target string) string {
	return f(target)
}

type recordingTransfer struct{}

func (recordingTransfer) ForOutlink(_, _ string, parent *pipeline.Metadata) *pipeline.Metadata {
	md := pipeline.NewMetadata()
	if v := parent.FirstValue("inherit.me"); v != "" {
		md.SetValue("inherit.me", v)
	}
	return md
}

func newTestExtractor(p sitemap.ExtractorParams) *sitemap.Extractor {
	if p.Clock == nil {
		p.Clock = fixedClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
	}
	if p.FilterHoursSinceModified == 0 {
		p.FilterHoursSinceModified = -1
	}
	return sitemap.NewExtractor(p)
}

func TestExtract_ResolvesRelativeTargets(t *testing.T) {
	e := newTestExtractor(sitemap.ExtractorParams{})
	doc := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: "/relative/page"},
		{Target: "https://example.com/absolute"},
		{Target: "https://example.com/frag#section"},
	}}

	outlinks := e.Extract("https://example.com/sitemap.xml", doc, pipeline.NewMetadata())
	require.Len(t, outlinks, 3)
	assert.Equal(t, "https://example.com/relative/page", outlinks[0].Target)
	assert.Equal(t, "https://example.com/absolute", outlinks[1].Target)
	assert.Equal(t, "https://example.com/frag", outlinks[2].Target)
}

func TestExtract_SkipsMalformedEntries(t *testing.T) {
	e := newTestExtractor(sitemap.ExtractorParams{})
	doc := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: ""},
		{Target: "://bad"},
		{Target: "https://example.com/good"},
	}}

	outlinks := e.Extract("https://example.com/sitemap.xml", doc, pipeline.NewMetadata())
	require.Len(t, outlinks, 1)
	assert.Equal(t, "https://example.com/good", outlinks[0].Target)
}

func TestExtract_IsSitemapTag(t *testing.T) {
	e := newTestExtractor(sitemap.ExtractorParams{})
	parent := pipeline.NewMetadata()

	index := &sitemap.Document{Kind: sitemap.KindIndex, Entries: []sitemap.Entry{
		{Target: "https://example.com/sitemap-a.xml"},
	}}
	outlinks := e.Extract("https://example.com/sitemap.xml", index, parent)
	require.Len(t, outlinks, 1)
	assert.Equal(t, "true", outlinks[0].Metadata.FirstValue(pipeline.KeyIsSitemap))

	urlset := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: "https://example.com/page"},
	}}
	outlinks = e.Extract("https://example.com/sitemap.xml", urlset, parent)
	require.Len(t, outlinks, 1)
	assert.Equal(t, "false", outlinks[0].Metadata.FirstValue(pipeline.KeyIsSitemap))
}

func TestExtract_LastModCutoff(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	e := sitemap.NewExtractor(sitemap.ExtractorParams{
		Clock:                    fixedClock{now: now},
		FilterHoursSinceModified: 24,
	})

	fresh := now.Add(-2 * time.Hour)
	stale := now.Add(-48 * time.Hour)
	doc := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: "https://example.com/fresh", LastModified: &fresh},
		{Target: "https://example.com/stale", LastModified: &stale},
		{Target: "https://example.com/undated"},
	}}

	outlinks := e.Extract("https://example.com/sitemap.xml", doc, pipeline.NewMetadata())
	require.Len(t, outlinks, 2)
	assert.Equal(t, "https://example.com/fresh", outlinks[0].Target)
	// Entries without lastmod are never pruned.
	assert.Equal(t, "https://example.com/undated", outlinks[1].Target)
}

func TestExtract_CutoffDisabledByNegativeHours(t *testing.T) {
	stale := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newTestExtractor(sitemap.ExtractorParams{})
	doc := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: "https://example.com/ancient", LastModified: &stale},
	}}

	outlinks := e.Extract("https://example.com/sitemap.xml", doc, pipeline.NewMetadata())
	assert.Len(t, outlinks, 1)
}

func TestExtract_URLFilterChain(t *testing.T) {
	e := newTestExtractor(sitemap.ExtractorParams{
		URLFilters: []pipeline.URLFilter{
			funcURLFilter(func(target string) string {
				if strings.Contains(target, "drop-me") {
					return ""
				}
				return target
			}),
			funcURLFilter(func(target string) string {
				return target + "?filtered=1"
			}),
		},
	})
	doc := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: "https://example.com/keep"},
		{Target: "https://example.com/drop-me"},
	}}

	outlinks := e.Extract("https://example.com/sitemap.xml", doc, pipeline.NewMetadata())
	require.Len(t, outlinks, 1)
	assert.Equal(t, "https://example.com/keep?filtered=1", outlinks[0].Target)
}

func TestExtract_MetadataInheritance(t *testing.T) {
	e := newTestExtractor(sitemap.ExtractorParams{Transfer: recordingTransfer{}})
	parent := pipeline.NewMetadata()
	parent.SetValue("inherit.me", "value")
	parent.SetValue("private", "secret")

	doc := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: "https://example.com/page"},
	}}
	outlinks := e.Extract("https://example.com/sitemap.xml", doc, parent)
	require.Len(t, outlinks, 1)

	md := outlinks[0].Metadata
	assert.Equal(t, "value", md.FirstValue("inherit.me"))
	assert.Empty(t, md.FirstValue("private"))
	// The outlink metadata must be distinct from the parent's.
	md.SetValue("inherit.me", "changed")
	assert.Equal(t, "value", parent.FirstValue("inherit.me"))
}

func TestExtract_DocumentOrderPreserved(t *testing.T) {
	e := newTestExtractor(sitemap.ExtractorParams{})
	doc := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: "https://example.com/1"},
		{Target: "https://example.com/2"},
		{Target: "https://example.com/3"},
	}}

	outlinks := e.Extract("https://example.com/sitemap.xml", doc, pipeline.NewMetadata())
	require.Len(t, outlinks, 3)
	for i, ol := range outlinks {
		assert.Equal(t, doc.Entries[i].Target, ol.Target)
	}
}

func TestExtract_UnparseableBaseURL(t *testing.T) {
	e := newTestExtractor(sitemap.ExtractorParams{})
	doc := &sitemap.Document{Kind: sitemap.KindURLSet, Entries: []sitemap.Entry{
		{Target: "https://example.com/page"},
	}}

	assert.Nil(t, e.Extract("http://bad url with spaces\x7f", doc, pipeline.NewMetadata()))
}
