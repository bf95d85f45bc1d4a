package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Publisher forwards envelopes to NATS JetStream for external consumers.
// Subjects follow the pattern: belief.market.events.{event_type}
type Publisher struct {
	js  jetstream.JetStream
	in  <-chan Envelope
	log zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, in <-chan Envelope, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, in: in, log: log}
}

// Run drains the input channel until ctx is cancelled or the channel closes.
// Publish failures are logged and dropped; downstream consumers can replay
// from the durable event log.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-p.in:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				p.log.Warn().
					Str("event_id", env.EventID.String()).
					Str("type", env.TypeName).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("belief.market.events.%s", env.TypeName)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "BELIEF_MARKET_EVENTS",
		Subjects:  []string{"belief.market.events.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	return err
}
