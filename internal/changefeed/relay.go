// Package changefeed moves patient change notifications from Postgres to
// Redis so every API instance can push them to its dashboards.
package changefeed

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ListenFunc blocks delivering notification payloads to fn until ctx is done
// (nil error) or the connection fails.
type ListenFunc func(ctx context.Context, fn func(payload string)) error

type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

type Relay struct {
	listen     ListenFunc
	pub        Publisher
	log        zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewRelay(listen ListenFunc, pub Publisher, log zerolog.Logger) *Relay {
	return &Relay{
		listen:     listen,
		pub:        pub,
		log:        log.With().Str("component", "changefeed").Logger(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run keeps a listener attached until ctx is cancelled, reconnecting with
// exponential backoff. Changes committed while disconnected are not replayed;
// dashboards resync on their next refetch.
func (r *Relay) Run(ctx context.Context) {
	backoff := r.minBackoff

	for {
		start := time.Now()
		err := r.listen(ctx, func(payload string) {
			if err := r.pub.Publish(ctx, []byte(payload)); err != nil {
				r.log.Error().Err(err).Msg("publish change")
			}
		})
		if ctx.Err() != nil {
			r.log.Info().Msg("changefeed stopped")
			return
		}

		// a listener that stayed up for a while earns a fresh backoff
		if time.Since(start) > r.maxBackoff {
			backoff = r.minBackoff
		}
		r.log.Warn().Err(err).Dur("retry_in", backoff).Msg("listener disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}
