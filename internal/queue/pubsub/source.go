// Package pubsub adapts a GCP Pub/Sub subscription to the queue.Source
// contract. Pub/Sub provides the at-least-once delivery and redelivery of
// unacknowledged messages; this package only bridges its push-style
// Receive loop to the stage's pull-style consume loop.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/crawlkit/sitemap-stage/internal/pipeline"
	"github.com/crawlkit/sitemap-stage/internal/queue"
)

// Source streams deliveries from one subscription.
type Source struct {
	client  *pubsub.Client
	sub     *pubsub.Subscription
	logger  *zap.Logger
	ownsCli bool

	deliveries chan pipeline.Delivery
	cancel     context.CancelFunc
	done       chan struct{}
	started    bool
	startOnce  sync.Once
	closeOnce  sync.Once
}

// New connects to Pub/Sub using Application Default Credentials and
// verifies the subscription exists.
func New(ctx context.Context, projectID, subscriptionID string, logger *zap.Logger, opts ...option.ClientOption) (*Source, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	sub := client.Subscription(subscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check subscription %q: %w", subscriptionID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", subscriptionID, projectID)
	}
	s := newSource(client, sub, logger)
	s.ownsCli = true
	return s, nil
}

// NewWithClient wraps an existing client (shared connections, tests).
// The caller keeps ownership of the client.
func NewWithClient(client *pubsub.Client, subscriptionID string, logger *zap.Logger) *Source {
	return newSource(client, client.Subscription(subscriptionID), logger)
}

func newSource(client *pubsub.Client, sub *pubsub.Subscription, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		client:     client,
		sub:        sub,
		logger:     logger,
		deliveries: make(chan pipeline.Delivery, 16),
		done:       make(chan struct{}),
	}
}

// Start launches the background Receive loop. It is safe to call once;
// subsequent calls are ignored.
func (s *Source) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		rctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.started = true
		go func() {
			defer close(s.done)
			defer close(s.deliveries)
			err := s.sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
				s.handle(rctx, msg)
			})
			if err != nil && rctx.Err() == nil {
				s.logger.Error("pubsub receive stopped", zap.Error(err))
			}
		}()
	})
}

func (s *Source) handle(rctx context.Context, msg *pubsub.Message) {
	item, err := pipeline.DecodeWorkItem(msg.Data)
	if err != nil {
		// Poison pill: ack and drop so the subscription never wedges on a
		// message that can never decode.
		s.logger.Error("dropping undecodable message", zap.String("id", msg.ID), zap.Error(err))
		msg.Ack()
		return
	}
	select {
	case s.deliveries <- &msgDelivery{item: item, msg: msg}:
	case <-rctx.Done():
		msg.Nack()
	}
}

// Next blocks until a delivery arrives, the context ends, or the source
// is closed.
func (s *Source) Next(ctx context.Context) (pipeline.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("next canceled: %w", ctx.Err())
	case d, ok := <-s.deliveries:
		if !ok {
			return nil, queue.ErrClosed
		}
		return d, nil
	}
}

// Close stops the Receive loop, waits for in-flight handlers, and closes
// the client when this source owns it.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.started {
			<-s.done
		}
		if s.ownsCli {
			err = s.client.Close()
		}
	})
	if err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

type msgDelivery struct {
	item pipeline.WorkItem
	msg  *pubsub.Message
	once sync.Once
}

func (d *msgDelivery) Item() pipeline.WorkItem {
	return d.item
}

func (d *msgDelivery) Ack() {
	d.once.Do(d.msg.Ack)
}
