package sitemap_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
	pubmem "github.com/crawlkit/sitemap-stage/internal/publisher/memory"
	"github.com/crawlkit/sitemap-stage/internal/sitemap"
)

type testDelivery struct {
	item pipeline.WorkItem
	acks atomic.Int32
}

func (d *testDelivery) Item() pipeline.WorkItem { return d.item }
func (d *testDelivery) Ack()                    { d.acks.Add(1) }

type funcParseFilter func(*pipeline.ExtractionResult) error

func (f funcParseFilter) Filter(_ string, _ []byte, result *pipeline.ExtractionResult) error {
	return f(result)
}

type recordingArchiver struct {
	calls []string
}

func (a *recordingArchiver) Archive(_ context.Context, item pipeline.WorkItem) (string, error) {
	a.calls = append(a.calls, item.URL)
	return "memory://" + item.URL, nil
}

type stageFixture struct {
	stage    *sitemap.Stage
	pub      *pubmem.Publisher
	archiver *recordingArchiver
}

func newStageFixture(t *testing.T, mutate func(*sitemap.Params)) *stageFixture {
	t.Helper()
	pub := pubmem.New()
	archiver := &recordingArchiver{}
	params := sitemap.Params{
		Detector:  sitemap.NewDetector(false, nil),
		Parser:    sitemap.NewParser(false),
		Extractor: newTestExtractor(sitemap.ExtractorParams{}),
		Main:      pub,
		Status:    pub,
		Archiver:  archiver,
	}
	if mutate != nil {
		mutate(&params)
	}
	stage, err := sitemap.New(params)
	require.NoError(t, err)
	return &stageFixture{stage: stage, pub: pub, archiver: archiver}
}

func sitemapItem(content string) pipeline.WorkItem {
	md := pipeline.NewMetadata()
	md.SetValue(pipeline.KeyIsSitemap, "true")
	return pipeline.WorkItem{
		URL:      "https://example.com/sitemap.xml",
		Content:  []byte(content),
		Metadata: md,
	}
}

func TestStage_PassthroughNonSitemap(t *testing.T) {
	f := newStageFixture(t, nil)
	item := pipeline.WorkItem{
		URL:      "https://example.com/page.html",
		Content:  []byte("<html></html>"),
		Metadata: pipeline.NewMetadata(),
	}
	d := &testDelivery{item: item}

	f.stage.Process(context.Background(), d)

	docs := f.pub.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, item.URL, docs[0].URL)
	assert.Equal(t, item.Content, docs[0].Content)
	assert.Empty(t, f.pub.Events())
	assert.Empty(t, f.archiver.calls)
	assert.Equal(t, int32(1), d.acks.Load())
}

func TestStage_ExtractsOutlinks(t *testing.T) {
	f := newStageFixture(t, nil)
	d := &testDelivery{item: sitemapItem(urlsetXML)}

	f.stage.Process(context.Background(), d)

	// Sitemap items are consumed, not forwarded.
	assert.Empty(t, f.pub.Documents())

	events := f.pub.Events()
	require.Len(t, events, 3)
	assert.Equal(t, pipeline.StatusDiscovered, events[0].Status)
	assert.Equal(t, "https://example.com/a", events[0].URL)
	assert.Equal(t, "false", events[0].Metadata.FirstValue(pipeline.KeyIsSitemap))
	assert.Equal(t, pipeline.StatusDiscovered, events[1].Status)
	assert.Equal(t, "https://example.com/b", events[1].URL)

	fetched := events[2]
	assert.Equal(t, pipeline.StatusFetched, fetched.Status)
	assert.Equal(t, "https://example.com/sitemap.xml", fetched.URL)

	assert.Equal(t, []string{"https://example.com/sitemap.xml"}, f.archiver.calls)
	assert.Equal(t, int32(1), d.acks.Load())
}

func TestStage_IndexOutlinksTaggedAsSitemaps(t *testing.T) {
	f := newStageFixture(t, nil)
	d := &testDelivery{item: sitemapItem(indexXML)}

	f.stage.Process(context.Background(), d)

	events := f.pub.Events()
	require.Len(t, events, 3)
	for _, evt := range events[:2] {
		assert.Equal(t, pipeline.StatusDiscovered, evt.Status)
		assert.Equal(t, "true", evt.Metadata.FirstValue(pipeline.KeyIsSitemap))
	}
	assert.Equal(t, pipeline.StatusFetched, events[2].Status)
}

func TestStage_EmptySitemapStillFetched(t *testing.T) {
	f := newStageFixture(t, nil)
	empty := `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc></loc></url></urlset>`
	d := &testDelivery{item: sitemapItem(empty)}

	f.stage.Process(context.Background(), d)

	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.StatusFetched, events[0].Status)
	assert.Equal(t, int32(1), d.acks.Load())
}

func TestStage_ParseErrorEmitsSingleError(t *testing.T) {
	f := newStageFixture(t, nil)
	d := &testDelivery{item: sitemapItem("<html><body>not a sitemap</body></html>")}

	f.stage.Process(context.Background(), d)

	assert.Empty(t, f.pub.Documents())
	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.StatusError, events[0].Status)
	assert.Equal(t, "https://example.com/sitemap.xml", events[0].URL)
	assert.Equal(t, "sitemap parsing", events[0].Metadata.FirstValue(pipeline.KeyErrorSource))
	assert.NotEmpty(t, events[0].Metadata.FirstValue(pipeline.KeyErrorMessage))
	assert.Equal(t, int32(1), d.acks.Load())
}

func TestStage_URLFilterPanicIsParseError(t *testing.T) {
	f := newStageFixture(t, func(p *sitemap.Params) {
		p.Extractor = newTestExtractor(sitemap.ExtractorParams{
			URLFilters: []pipeline.URLFilter{
				funcURLFilter(func(string) string { panic("bad plugin") }),
			},
		})
	})
	d := &testDelivery{item: sitemapItem(urlsetXML)}

	f.stage.Process(context.Background(), d)

	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.StatusError, events[0].Status)
	assert.Equal(t, "sitemap parsing", events[0].Metadata.FirstValue(pipeline.KeyErrorSource))
	assert.Equal(t, int32(1), d.acks.Load())
}

func TestStage_ParseFilterErrorDiscardsOutlinks(t *testing.T) {
	f := newStageFixture(t, func(p *sitemap.Params) {
		p.ParseFilters = []pipeline.ParseFilter{
			funcParseFilter(func(*pipeline.ExtractionResult) error {
				return errors.New("rejected by policy")
			}),
		}
	})
	d := &testDelivery{item: sitemapItem(urlsetXML)}

	f.stage.Process(context.Background(), d)

	// All-or-nothing: no DISCOVERED events survive a filter failure.
	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.StatusError, events[0].Status)
	assert.Equal(t, "content filtering", events[0].Metadata.FirstValue(pipeline.KeyErrorSource))
	assert.Contains(t, events[0].Metadata.FirstValue(pipeline.KeyErrorMessage), "rejected by policy")
	assert.Equal(t, int32(1), d.acks.Load())
}

func TestStage_ParseFilterPanicIsFilterError(t *testing.T) {
	f := newStageFixture(t, func(p *sitemap.Params) {
		p.ParseFilters = []pipeline.ParseFilter{
			funcParseFilter(func(*pipeline.ExtractionResult) error { panic("filter blew up") }),
		}
	})
	d := &testDelivery{item: sitemapItem(urlsetXML)}

	f.stage.Process(context.Background(), d)

	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.StatusError, events[0].Status)
	assert.Equal(t, "content filtering", events[0].Metadata.FirstValue(pipeline.KeyErrorSource))
}

func TestStage_ParseFiltersCanRewriteOutlinks(t *testing.T) {
	f := newStageFixture(t, func(p *sitemap.Params) {
		p.ParseFilters = []pipeline.ParseFilter{
			funcParseFilter(func(result *pipeline.ExtractionResult) error {
				result.Outlinks = result.Outlinks[:1]
				return nil
			}),
		}
	})
	d := &testDelivery{item: sitemapItem(urlsetXML)}

	f.stage.Process(context.Background(), d)

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, pipeline.StatusDiscovered, events[0].Status)
	assert.Equal(t, pipeline.StatusFetched, events[1].Status)
}

func TestStage_EmitFailureStillAcks(t *testing.T) {
	f := newStageFixture(t, nil)
	f.pub.FailStatus = errors.New("broker unavailable")
	d := &testDelivery{item: sitemapItem(urlsetXML)}

	f.stage.Process(context.Background(), d)

	assert.Equal(t, int32(1), d.acks.Load())
}

func TestStage_NilMetadataNormalized(t *testing.T) {
	f := newStageFixture(t, nil)
	d := &testDelivery{item: pipeline.WorkItem{
		URL:     "https://example.com/page.html",
		Content: []byte("<html></html>"),
	}}

	f.stage.Process(context.Background(), d)

	require.Len(t, f.pub.Documents(), 1)
	assert.Equal(t, int32(1), d.acks.Load())
}

func TestStage_Deterministic(t *testing.T) {
	run := func() []pipeline.StatusEvent {
		f := newStageFixture(t, nil)
		d := &testDelivery{item: sitemapItem(urlsetXML)}
		f.stage.Process(context.Background(), d)
		return f.pub.Events()
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].URL, second[i].URL)
		assert.Equal(t, first[i].Status, second[i].Status)
	}
}

func TestStage_ManyOutlinksOrdered(t *testing.T) {
	var b []byte
	b = append(b, []byte(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)...)
	for i := 0; i < 50; i++ {
		b = append(b, []byte(fmt.Sprintf("<url><loc>https://example.com/p/%03d</loc></url>", i))...)
	}
	b = append(b, []byte("</urlset>")...)

	f := newStageFixture(t, nil)
	d := &testDelivery{item: sitemapItem(string(b))}
	f.stage.Process(context.Background(), d)

	events := f.pub.Events()
	require.Len(t, events, 51)
	for i := 0; i < 50; i++ {
		assert.Equal(t, pipeline.StatusDiscovered, events[i].Status)
		assert.Equal(t, fmt.Sprintf("https://example.com/p/%03d", i), events[i].URL)
	}
	assert.Equal(t, pipeline.StatusFetched, events[50].Status)
}
