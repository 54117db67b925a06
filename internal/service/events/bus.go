package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	topic = "session.events"

	// subscriberBuffer is how many events a slow observer may lag behind
	// before events are dropped for it.
	subscriberBuffer = 32
)

// Bus fans session events out to any number of observers.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus. Publish blocks until every current
// subscriber has received the event, which keeps events in order.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, logger),
	}
}

// Publish sends ev to all subscribers. Events published while nobody is
// subscribed are discarded.
func (b *Bus) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("component", "events").Msg("failed to encode event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(ev.Type))

	if err := b.pubsub.Publish(topic, msg); err != nil {
		log.Warn().Err(err).Str("component", "events").Str("type", string(ev.Type)).Msg("failed to publish event")
	}
}

// Subscribe returns a channel of events that is closed when ctx is done or
// the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to session events")
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev Event
			err := json.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if err != nil {
				log.Error().Err(err).Str("component", "events").Msg("failed to decode event")
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			default:
				log.Warn().Str("component", "events").Str("type", string(ev.Type)).Msg("subscriber lagging, dropping event")
			}
		}
	}()

	return out, nil
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
