package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

func TestWorkItemRoundTrip(t *testing.T) {
	md := pipeline.NewMetadata()
	md.SetValue("isSitemap", "true")
	md.SetValue("content-type", "application/xml")

	item := pipeline.WorkItem{
		URL:      "https://example.com/sitemap.xml",
		Content:  []byte("<urlset/>"),
		Metadata: md,
	}

	data, err := pipeline.EncodeWorkItem(item)
	require.NoError(t, err)

	decoded, err := pipeline.DecodeWorkItem(data)
	require.NoError(t, err)
	assert.Equal(t, item.URL, decoded.URL)
	assert.Equal(t, item.Content, decoded.Content)
	assert.Equal(t, "true", decoded.Metadata.FirstValue("isSitemap"))
	assert.Equal(t, []string{"isSitemap", "content-type"}, decoded.Metadata.Keys())
}

func TestDecodeWorkItem_MissingURL(t *testing.T) {
	_, err := pipeline.DecodeWorkItem([]byte(`{"content":""}`))
	assert.Error(t, err)
}

func TestStatusEventRoundTrip(t *testing.T) {
	evt := pipeline.StatusEvent{
		URL:    "https://example.com/page",
		Status: pipeline.StatusDiscovered,
	}

	data, err := pipeline.EncodeStatusEvent(evt)
	require.NoError(t, err)

	decoded, err := pipeline.DecodeStatusEvent(data)
	require.NoError(t, err)
	assert.Equal(t, evt.URL, decoded.URL)
	assert.Equal(t, pipeline.StatusDiscovered, decoded.Status)
}

func TestDecodeStatusEvent_UnknownStatus(t *testing.T) {
	_, err := pipeline.DecodeStatusEvent([]byte(`{"url":"https://example.com","status":"BOGUS"}`))
	assert.Error(t, err)
}
