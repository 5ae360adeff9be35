package events

import (
	"context"
	"errors"

	"kb-assistant-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const localTopic = "conversation_events"

// LocalBus fans events out to subscribers inside this process.
type LocalBus struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger
}

func NewLocalBus(log logger.ILogger) *LocalBus {
	return &LocalBus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NopLogger{},
		),
		logger: log,
	}
}

func (b *LocalBus) Publish(_ context.Context, event Event) error {
	payload, err := Marshal(event)
	if err != nil {
		return err
	}
	return b.pubSub.Publish(localTopic, message.NewMessage(watermill.NewUUID(), payload))
}

// Subscribe calls handler for every event published after the call, until
// ctx is done. Handlers run on a single goroutine per subscription.
func (b *LocalBus) Subscribe(ctx context.Context, handler func(Event)) error {
	messages, err := b.pubSub.Subscribe(ctx, localTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			event, err := Unmarshal(msg.Payload)
			if err != nil {
				b.logger.Warn("LocalBus", "Dropping undecodable event", map[string]interface{}{"error": err.Error()})
				msg.Ack()
				continue
			}
			handler(event)
			msg.Ack()
		}
	}()
	return nil
}

func (b *LocalBus) Close() error {
	return b.pubSub.Close()
}

// Fanout publishes every event to all non-nil publishers and joins the errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
