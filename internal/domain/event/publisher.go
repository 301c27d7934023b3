package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis channel prefixes
const (
	userChannelPrefix = "events:user:"
	firehoseChannel   = "events:firehose"
)

// UserChannel returns the per-user pub/sub channel name.
func UserChannel(userID uuid.UUID) string {
	return userChannelPrefix + userID.String()
}

// Publisher fans events out over Redis Pub/Sub so every API instance's hub
// sees them. Publishing is best-effort and always happens after the money
// path committed: a lost event never implies a lost ledger row.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

// Publish delivers the event to the user's channel and the firehose.
// Failures are logged, never propagated to the caller.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil || p.redis == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("event marshal failed")
		return
	}

	for _, channel := range []string{UserChannel(e.UserID), firehoseChannel} {
		if err := p.redis.Publish(ctx, channel, payload).Err(); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("event publish failed")
		}
	}
}

// PublishAll delivers the same event envelope to several users.
func (p *Publisher) PublishAll(ctx context.Context, e Event, userIDs ...uuid.UUID) {
	for _, id := range userIDs {
		evt := e
		evt.UserID = id
		p.Publish(ctx, evt)
	}
}
