package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ChangesChannel carries raw patient change payloads between the changefeed
// and every API instance.
const ChangesChannel = "intake:patient_changes"

// Broker relays change payloads over Redis pub/sub.
type Broker struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

func NewBroker(client *redis.Client, channel string, log zerolog.Logger) *Broker {
	return &Broker{
		client:  client,
		channel: channel,
		log:     log.With().Str("component", "broker").Str("channel", channel).Logger(),
	}
}

func (b *Broker) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe delivers every message on the channel to fn until ctx is done.
// Messages are handed over in arrival order on a single goroutine.
func (b *Broker) Subscribe(ctx context.Context, fn func(payload []byte)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			b.log.Warn().Err(err).Msg("close subscription")
		}
	}()

	// wait for the subscribe confirmation so no message published after
	// Subscribe returns can be missed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info().Msg("subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn([]byte(msg.Payload))
		}
	}
}
