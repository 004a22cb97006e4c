// Package filters provides URL-filter, parse-filter and
// metadata-transfer implementations for the sitemap stage.
package filters

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// HostBlocklist drops outlinks whose host matches a configured pattern:
// exact hosts, or suffix wildcards written as "*.example.com" or
// ".example.com".
type HostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewHostBlocklist builds a blocklist from configuration patterns. It
// returns nil when no usable pattern is present, which callers may treat
// as "no filter".
func NewHostBlocklist(patterns []string) *HostBlocklist {
	b := &HostBlocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *HostBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Filter implements pipeline.URLFilter.
func (b *HostBlocklist) Filter(_ *url.URL, _ *pipeline.Metadata, target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	if b.blocked(u.Hostname()) {
		return ""
	}
	return target
}

func (b *HostBlocklist) blocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Pattern keeps outlinks matching at least one include expression (when
// any are configured) and drops those matching any exclude expression.
type Pattern struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewPattern compiles include/exclude expressions.
func NewPattern(include, exclude []string) (*Pattern, error) {
	p := &Pattern{}
	for _, expr := range include {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile include pattern %q: %w", expr, err)
		}
		p.include = append(p.include, re)
	}
	for _, expr := range exclude {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", expr, err)
		}
		p.exclude = append(p.exclude, re)
	}
	return p, nil
}

// Filter implements pipeline.URLFilter.
func (p *Pattern) Filter(_ *url.URL, _ *pipeline.Metadata, target string) string {
	if len(p.include) > 0 {
		matched := false
		for _, re := range p.include {
			if re.MatchString(target) {
				matched = true
				break
			}
		}
		if !matched {
			return ""
		}
	}
	for _, re := range p.exclude {
		if re.MatchString(target) {
			return ""
		}
	}
	return target
}

// Normalizer standardizes outlink URLs to avoid duplicates downstream: it
// lowercases the scheme and host, removes default ports, drops fragments
// and sorts query parameters. Unparseable targets are dropped.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Filter implements pipeline.URLFilter.
func (Normalizer) Filter(_ *url.URL, _ *pipeline.Metadata, target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String()
}

// MaxLength drops outlinks longer than a configured byte length.
type MaxLength struct {
	limit int
}

// NewMaxLength creates a MaxLength filter; limit must be > 0.
func NewMaxLength(limit int) *MaxLength {
	return &MaxLength{limit: limit}
}

// Filter implements pipeline.URLFilter.
func (f *MaxLength) Filter(_ *url.URL, _ *pipeline.Metadata, target string) string {
	if f.limit > 0 && len(target) > f.limit {
		return ""
	}
	return target
}
