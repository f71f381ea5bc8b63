package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"cloud.google.com/go/pubsub"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// PubSubNotifier publishes storefront notifications to a Pub/Sub topic.
// Notify never waits for the publish result; failures are logged.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	logger  func(context.Context, string, map[string]any)
	pending sync.WaitGroup
}

// NewPubSubNotifier constructs a notifier for the given topic.
func NewPubSubNotifier(topic *pubsub.Topic, logger func(context.Context, string, map[string]any)) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PubSubNotifier{topic: topic, marshal: json.Marshal, logger: logger}, nil
}

// Notify enqueues the notification on the topic.
func (p *PubSubNotifier) Notify(ctx context.Context, n domain.Notification) {
	msg := newNotificationMessage(n)
	data, err := p.marshal(msg)
	if err != nil {
		p.logger(ctx, "notification.publish_failed", map[string]any{"kind": msg.Kind, "error": err.Error()})
		return
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: msg.attributes()})

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		waitCtx := context.WithoutCancel(ctx)
		id, err := result.Get(waitCtx)
		if err != nil {
			p.logger(waitCtx, "notification.publish_failed", map[string]any{"kind": msg.Kind, "error": err.Error()})
			return
		}
		p.logger(waitCtx, "notification.published", map[string]any{"kind": msg.Kind, "messageId": id})
	}()
}

// Close flushes buffered messages and waits for outstanding results.
func (p *PubSubNotifier) Close() {
	p.topic.Stop()
	p.pending.Wait()
}
