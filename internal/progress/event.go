// Package progress defines the observability events emitted per processed
// item and the hub that fans them out to sinks. It is purely
// observational: status-channel emission stays synchronous in the stage.
package progress

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Stage denotes the terminal disposition an Event reports.
type Stage string

// Supported dispositions.
const (
	StagePassthrough Stage = "PASSTHROUGH"
	StageParseError  Stage = "PARSE_ERROR"
	StageFilterError Stage = "FILTER_ERROR"
	StageExtracted   Stage = "EXTRACTED"
)

// Event captures the outcome of processing a single work item.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes the disposition the item reached.
	Stage Stage
	// Site is the lowercase hostname label derived from URL.
	Site string
	// URL is the item URL; it should not contain credentials.
	URL string
	// Outlinks counts DISCOVERED events emitted for the item.
	Outlinks int64
	// Bytes is the raw content size of the item.
	Bytes int64
	// Dur captures processing latency for the item.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StagePassthrough, StageParseError, StageFilterError, StageExtracted:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.URL == "" {
		return errors.New("url is required")
	}
	if e.Outlinks < 0 {
		return errors.New("outlinks must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// SiteOf extracts a lowercase hostname label from a URL, or "unknown".
func SiteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
