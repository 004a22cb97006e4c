// Package memory contains in-memory emitter implementations for tests
// and local development.
package memory

import (
	"context"
	"sync"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// Publisher records everything emitted on both channels for inspection.
// It implements pipeline.MainEmitter and pipeline.StatusEmitter.
type Publisher struct {
	mu        sync.RWMutex
	documents []pipeline.WorkItem
	events    []pipeline.StatusEvent

	// FailDocuments / FailStatus force errors for failure-path tests.
	FailDocuments error
	FailStatus    error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// EmitDocument records a main-channel emission.
func (p *Publisher) EmitDocument(_ context.Context, item pipeline.WorkItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailDocuments != nil {
		return p.FailDocuments
	}
	p.documents = append(p.documents, item)
	return nil
}

// EmitStatus records a status-channel emission.
func (p *Publisher) EmitStatus(_ context.Context, evt pipeline.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailStatus != nil {
		return p.FailStatus
	}
	p.events = append(p.events, evt)
	return nil
}

// Documents returns the recorded main-channel emissions.
func (p *Publisher) Documents() []pipeline.WorkItem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]pipeline.WorkItem, len(p.documents))
	copy(out, p.documents)
	return out
}

// Events returns the recorded status-channel emissions.
func (p *Publisher) Events() []pipeline.StatusEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]pipeline.StatusEvent, len(p.events))
	copy(out, p.events)
	return out
}
