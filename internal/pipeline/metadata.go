package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Reserved metadata keys. The stage keeps these single-valued.
const (
	// KeyIsSitemap marks an item (or outlink) as a sitemap to be parsed by
	// this stage when fetched.
	KeyIsSitemap = "isSitemap"
	// KeyErrorSource names the processing step that failed an item.
	KeyErrorSource = "error.source"
	// KeyErrorMessage carries the human-readable failure description.
	KeyErrorMessage = "error.message"
	// KeyContentType carries the content-type hint recorded upstream.
	KeyContentType = "content-type"
)

// Metadata is an ordered multimap of string keys to one or more string
// values. Key order follows first insertion; value order follows append
// order. The zero value is not usable, call NewMetadata.
type Metadata struct {
	keys   []string
	values map[string][]string
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string][]string)}
}

// FirstValue returns the first value recorded for key, or "".
func (m *Metadata) FirstValue(key string) string {
	if m == nil {
		return ""
	}
	vals := m.values[key]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Values returns a copy of all values recorded for key.
func (m *Metadata) Values(key string) []string {
	if m == nil || len(m.values[key]) == 0 {
		return nil
	}
	return append([]string(nil), m.values[key]...)
}

// SetValue replaces any existing values for key with a single value.
func (m *Metadata) SetValue(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = []string{value}
}

// AddValue appends a value for key, keeping earlier values.
func (m *Metadata) AddValue(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append(m.values[key], value)
}

// Keys returns the keys in first-insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of distinct keys.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns a deep copy. Cloning nil yields an empty Metadata so
// callers can extend the result unconditionally.
func (m *Metadata) Clone() *Metadata {
	out := NewMetadata()
	if m == nil {
		return out
	}
	out.keys = append(out.keys, m.keys...)
	for k, vals := range m.values {
		out.values[k] = append([]string(nil), vals...)
	}
	return out
}

// MarshalJSON encodes the multimap as a JSON object with array values,
// preserving key order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata key: %w", err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, fmt.Errorf("marshal metadata values for %q: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object with array values, preserving the
// key order of the document.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.values = make(map[string][]string)

	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode metadata: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode metadata key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode metadata: non-string key %v", keyTok)
		}
		var vals []string
		if err := dec.Decode(&vals); err != nil {
			return fmt.Errorf("decode metadata values for %q: %w", key, err)
		}
		for _, v := range vals {
			m.AddValue(key, v)
		}
		if len(vals) == 0 {
			// Preserve the key even when the document carried an empty array.
			if _, exists := m.values[key]; !exists {
				m.keys = append(m.keys, key)
				m.values[key] = nil
			}
		}
	}
	return nil
}
