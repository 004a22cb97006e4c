// Package pubsub implements the main and status channels on GCP Pub/Sub
// topics. The two channels are distinct topics so downstream consumers of
// the parsing stream never see control traffic and vice versa.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
)

// Publisher emits documents and status events to their topics. It
// implements pipeline.MainEmitter and pipeline.StatusEmitter.
type Publisher struct {
	client  *pubsub.Client
	main    *pubsub.Topic
	status  *pubsub.Topic
	ownsCli bool

	closeOnce sync.Once
}

// New connects to Pub/Sub and verifies both topics exist.
func New(ctx context.Context, projectID, mainTopicID, statusTopicID string, opts ...option.ClientOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p, err := build(ctx, client, mainTopicID, statusTopicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	p.ownsCli = true
	return p, nil
}

// NewWithClient wraps an existing client (shared connections, tests). The
// caller keeps ownership of the client.
func NewWithClient(ctx context.Context, client *pubsub.Client, mainTopicID, statusTopicID string) (*Publisher, error) {
	return build(ctx, client, mainTopicID, statusTopicID)
}

func build(ctx context.Context, client *pubsub.Client, mainTopicID, statusTopicID string) (*Publisher, error) {
	main := client.Topic(mainTopicID)
	status := client.Topic(statusTopicID)
	for _, topic := range []*pubsub.Topic{main, status} {
		exists, err := topic.Exists(ctx)
		if err != nil {
			return nil, fmt.Errorf("check topic %q: %w", topic.ID(), err)
		}
		if !exists {
			return nil, fmt.Errorf("pubsub topic %q does not exist", topic.ID())
		}
	}
	return &Publisher{client: client, main: main, status: status}, nil
}

// EmitDocument publishes a work item on the main topic and waits for the
// server acknowledgment so delivery failures surface to the caller.
func (p *Publisher) EmitDocument(ctx context.Context, item pipeline.WorkItem) error {
	data, err := pipeline.EncodeWorkItem(item)
	if err != nil {
		return err
	}
	result := p.main.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish document %s: %w", item.URL, err)
	}
	return nil
}

// EmitStatus publishes a status event on the status topic. The status
// value is mirrored into a message attribute so consumers can subscribe
// with a filter.
func (p *Publisher) EmitStatus(ctx context.Context, evt pipeline.StatusEvent) error {
	data, err := pipeline.EncodeStatusEvent(evt)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"status": string(evt.Status)},
	}
	result := p.status.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish status %s for %s: %w", evt.Status, evt.URL, err)
	}
	return nil
}

// Close flushes pending publishes and closes the client when this
// publisher owns it.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.main.Stop()
		p.status.Stop()
		if p.ownsCli {
			err = p.client.Close()
		}
	})
	if err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
