package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/enactgo/enact/events"
)

type options struct {
	channelPrefix string
}

type option func(*options)

// WithChannelPrefix sets the prefix for the pub/sub channels events are
// published to. Defaults to "enact".
func WithChannelPrefix(prefix string) option {
	return func(o *options) {
		o.channelPrefix = prefix
	}
}

// Publisher forwards engine events to redis pub/sub so subscribers in other
// processes can react to them, for example deadline schedulers or audit
// trails. One channel per event type: "<prefix>:<event type>".
type Publisher struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ events.Notifier = (*Publisher)(nil)

func NewPublisher(client redis.UniversalClient, opts ...option) *Publisher {
	options := &options{
		channelPrefix: "enact",
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Publisher{
		rdb:    client,
		prefix: options.channelPrefix,
	}
}

func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing event: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel(event.Type), payload).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	return nil
}

func (p *Publisher) channel(t events.Type) string {
	return p.prefix + ":" + string(t)
}
