package sitemap

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxDecompressedBytes caps gzip expansion so a hostile sitemap cannot
// exhaust memory.
const maxDecompressedBytes = 64 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// lastModLayouts are the timestamp shapes accepted in <lastmod> values.
var lastModLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	time.RFC1123,
	time.RFC1123Z,
}

// Parser turns raw sitemap bytes into a typed Document. In strict mode
// malformed-but-recoverable documents are rejected; the default is
// lenient best-effort recovery.
type Parser struct {
	strict bool
}

// NewParser creates a Parser.
func NewParser(strict bool) *Parser {
	return &Parser{strict: strict}
}

// Parse decodes content into a Document. The contentType hint selects the
// decoder; a blank or octet-stream hint triggers format autodetection.
// Failures are returned as *ParseError carrying pageURL.
func (p *Parser) Parse(pageURL string, content []byte, contentType string) (*Document, error) {
	doc, err := p.parse(content, contentType)
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: err}
	}
	return doc, nil
}

func (p *Parser) parse(content []byte, hint string) (*Document, error) {
	if len(content) == 0 {
		return nil, &UnknownFormatError{Hint: "empty content"}
	}
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint != "" && strings.Contains(hint, "octet-stream") {
		hint = ""
	}

	if isGzip(content) {
		plain, err := gunzip(content)
		if err != nil {
			return nil, fmt.Errorf("gunzip sitemap: %w", err)
		}
		content = plain
		// The hint described the compressed envelope, not the payload.
		hint = ""
	} else if strings.Contains(hint, "gzip") {
		return nil, &UnknownFormatError{Hint: "gzip content-type without gzip magic bytes"}
	}

	switch {
	case strings.Contains(hint, "xml"):
		return p.parseXML(content)
	case strings.HasPrefix(hint, "text/plain"):
		return p.parseText(content)
	default:
		if looksLikeXML(content) {
			return p.parseXML(content)
		}
		return p.parseText(content)
	}
}

// xmlEntry matches both <sitemap> and <url> elements; index entries leave
// changefreq and priority empty.
type xmlEntry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

func (e xmlEntry) entry() Entry {
	return Entry{
		Target:          strings.TrimSpace(e.Loc),
		LastModified:    parseLastMod(e.LastMod),
		Priority:        parsePriority(e.Priority),
		ChangeFrequency: parseChangeFreq(e.ChangeFreq),
	}
}

func (p *Parser) parseXML(content []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = p.strict

	var doc *Document
loop:
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Before the root element is identified there is nothing to
			// recover; afterwards, lenient mode keeps what it has.
			if doc != nil && !p.strict {
				break
			}
			return nil, fmt.Errorf("decode sitemap xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if doc == nil {
			switch start.Name.Local {
			case "sitemapindex":
				doc = &Document{Kind: KindIndex}
			case "urlset":
				doc = &Document{Kind: KindURLSet}
			default:
				return nil, &UnknownFormatError{Hint: fmt.Sprintf("unexpected root element <%s>", start.Name.Local)}
			}
			continue
		}
		var want string
		if doc.Kind == KindIndex {
			want = "sitemap"
		} else {
			want = "url"
		}
		if start.Name.Local != want {
			continue
		}
		var raw xmlEntry
		if err := dec.DecodeElement(&raw, &start); err != nil {
			if p.strict {
				return nil, fmt.Errorf("decode <%s> element: %w", want, err)
			}
			// The decoder state is unreliable after a failed element.
			break loop
		}
		if raw.Loc == "" {
			continue
		}
		doc.Entries = append(doc.Entries, raw.entry())
	}
	if doc == nil {
		return nil, &UnknownFormatError{Hint: "no root element"}
	}
	return doc, nil
}

// parseText decodes the plain-text sitemap variant: one URL per line.
func (p *Parser) parseText(content []byte) (*Document, error) {
	doc := &Document{Kind: KindURLSet}
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			if p.strict {
				return nil, &UnknownFormatError{Hint: fmt.Sprintf("non-URL line %q", clip(line, 80))}
			}
			continue
		}
		doc.Entries = append(doc.Entries, Entry{Target: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan text sitemap: %w", err)
	}
	if len(doc.Entries) == 0 {
		return nil, &UnknownFormatError{Hint: "no URLs found in text document"}
	}
	return doc, nil
}

func isGzip(content []byte) bool {
	return len(content) >= 2 && content[0] == 0x1f && content[1] == 0x8b
}

func gunzip(content []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	data, err := io.ReadAll(io.LimitReader(zr, maxDecompressedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDecompressedBytes {
		return nil, fmt.Errorf("decompressed content exceeds %d bytes", maxDecompressedBytes)
	}
	return data, nil
}

func looksLikeXML(content []byte) bool {
	body := bytes.TrimPrefix(content, utf8BOM)
	body = bytes.TrimLeft(body, " \t\r\n")
	return len(body) > 0 && body[0] == '<'
}

func parseLastMod(value string) *time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	for _, layout := range lastModLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return &parsed
		}
	}
	return nil
}

func parsePriority(value string) *float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseChangeFreq(value string) ChangeFreq {
	switch freq := ChangeFreq(strings.ToLower(strings.TrimSpace(value))); freq {
	case ChangeAlways, ChangeHourly, ChangeDaily, ChangeWeekly, ChangeMonthly, ChangeYearly, ChangeNever:
		return freq
	default:
		return ""
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
