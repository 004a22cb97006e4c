// Package sitemap implements the sitemap-processing stage: detection,
// parsing, link extraction and status emission.
package sitemap

import "time"

// Kind tags the two sitemap document shapes.
type Kind string

// Document kinds. A parsed document is exactly one of these; the tag is
// determined by the underlying format, never guessed.
const (
	// KindIndex is a sitemap index: a list of further sitemap URLs.
	KindIndex Kind = "index"
	// KindURLSet is a leaf sitemap: a list of crawlable page URLs.
	KindURLSet Kind = "urlset"
)

// ChangeFreq is the advisory change frequency of a urlset entry.
type ChangeFreq string

// Change frequencies defined by the sitemap protocol.
const (
	ChangeAlways  ChangeFreq = "always"
	ChangeHourly  ChangeFreq = "hourly"
	ChangeDaily   ChangeFreq = "daily"
	ChangeWeekly  ChangeFreq = "weekly"
	ChangeMonthly ChangeFreq = "monthly"
	ChangeYearly  ChangeFreq = "yearly"
	ChangeNever   ChangeFreq = "never"
)

// Entry is one location listed by a sitemap document. Priority and
// ChangeFrequency are only populated for urlset entries; both are parsed
// but unused downstream, reserved for future scheduling policy.
type Entry struct {
	Target          string
	LastModified    *time.Time
	Priority        *float64
	ChangeFrequency ChangeFreq
}

// Document is the parsed, typed form of a sitemap: a kind tag plus the
// entries in document order.
type Document struct {
	Kind    Kind
	Entries []Entry
}

// IsIndex reports whether the document lists further sitemaps.
func (d *Document) IsIndex() bool {
	return d != nil && d.Kind == KindIndex
}
