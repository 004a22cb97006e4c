package sitemap

import "fmt"

// Error-source tags attached to the metadata of failed items.
const (
	errorSourceParsing   = "sitemap parsing"
	errorSourceFiltering = "content filtering"
)

// ParseError indicates a sitemap document could not be parsed. It carries
// the offending URL and the underlying cause; it is never retried locally.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("sitemap parse failed: %v", e.Err)
	}
	return fmt.Sprintf("sitemap parse failed for %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FilterError indicates the parse-filter chain rejected or blew up on an
// extraction result.
type FilterError struct {
	URL string
	Err error
}

func (e *FilterError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("parse filtering failed: %v", e.Err)
	}
	return fmt.Sprintf("parse filtering failed for %s: %v", e.URL, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// UnknownFormatError indicates content that matches none of the supported
// sitemap formats.
type UnknownFormatError struct {
	Hint string
}

func (e *UnknownFormatError) Error() string {
	if e.Hint == "" {
		return "unknown sitemap format"
	}
	return fmt.Sprintf("unknown sitemap format: %s", e.Hint)
}
