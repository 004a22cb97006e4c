// Package pipeline defines core types shared across stage subsystems.
package pipeline

import "time"

// Status represents the crawl-state transition reported for a URL on the
// status channel.
type Status string

// Status values emitted by the stage.
const (
	StatusDiscovered Status = "DISCOVERED"
	StatusFetched    Status = "FETCHED"
	StatusError      Status = "ERROR"
)

// WorkItem is one unit of work delivered by the substrate: a fetched
// document plus its accumulated metadata. The stage treats URL and Content
// as immutable and only extends Metadata.
type WorkItem struct {
	URL      string
	Content  []byte
	Metadata *Metadata
}

// Outlink is a URL discovered in a sitemap together with the metadata
// derived for it. Ownership transfers to the emission step.
type Outlink struct {
	Target   string
	Metadata *Metadata
}

// StatusEvent is the unit sent on the status channel.
type StatusEvent struct {
	URL      string
	Metadata *Metadata
	Status   Status
}

// ExtractionResult aggregates everything extracted from one sitemap
// document. Parse filters may mutate it before emission.
type ExtractionResult struct {
	Outlinks []Outlink
	Metadata *Metadata
}

// Delivery wraps a WorkItem together with its acknowledgment handle.
// Ack must be invoked exactly once per delivery; implementations make
// repeated calls safe so the stage can route every exit path through a
// single deferred Ack.
type Delivery interface {
	Item() WorkItem
	Ack()
}

// Clock returns the current time (useful for testing the date cutoff).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests for content-addressed archive paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces delivery and request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
