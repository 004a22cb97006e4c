package pipeline

import (
	"encoding/json"
	"fmt"
)

// wireItem is the JSON form a WorkItem takes on the queue and main topic.
// Content is base64-encoded by encoding/json.
type wireItem struct {
	URL      string    `json:"url"`
	Content  []byte    `json:"content,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// wireStatus is the JSON form of a StatusEvent on the status topic.
type wireStatus struct {
	URL      string    `json:"url"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Status   Status    `json:"status"`
}

// EncodeWorkItem serializes a WorkItem for transport.
func EncodeWorkItem(item WorkItem) ([]byte, error) {
	data, err := json.Marshal(wireItem{URL: item.URL, Content: item.Content, Metadata: item.Metadata})
	if err != nil {
		return nil, fmt.Errorf("encode work item: %w", err)
	}
	return data, nil
}

// DecodeWorkItem deserializes a WorkItem received from transport.
func DecodeWorkItem(data []byte) (WorkItem, error) {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return WorkItem{}, fmt.Errorf("decode work item: %w", err)
	}
	if w.URL == "" {
		return WorkItem{}, fmt.Errorf("decode work item: missing url")
	}
	return WorkItem{URL: w.URL, Content: w.Content, Metadata: w.Metadata}, nil
}

// EncodeStatusEvent serializes a StatusEvent for transport.
func EncodeStatusEvent(evt StatusEvent) ([]byte, error) {
	data, err := json.Marshal(wireStatus{URL: evt.URL, Metadata: evt.Metadata, Status: evt.Status})
	if err != nil {
		return nil, fmt.Errorf("encode status event: %w", err)
	}
	return data, nil
}

// DecodeStatusEvent deserializes a StatusEvent received from transport.
func DecodeStatusEvent(data []byte) (StatusEvent, error) {
	var w wireStatus
	if err := json.Unmarshal(data, &w); err != nil {
		return StatusEvent{}, fmt.Errorf("decode status event: %w", err)
	}
	if w.URL == "" {
		return StatusEvent{}, fmt.Errorf("decode status event: missing url")
	}
	switch w.Status {
	case StatusDiscovered, StatusFetched, StatusError:
	default:
		return StatusEvent{}, fmt.Errorf("decode status event: unknown status %q", w.Status)
	}
	return StatusEvent{URL: w.URL, Metadata: w.Metadata, Status: w.Status}, nil
}
