package progress

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
)

// DefaultChannelPrefix namespaces progress channels in Redis.
const DefaultChannelPrefix = "genstudio:progress:"

type envelope struct {
	Origin string             `json:"origin"`
	Event  domain.JobProgress `json:"event"`
}

// RedisRelay carries progress events between processes over Redis pub/sub.
// Events published by this relay are not fed back into its own sink.
type RedisRelay struct {
	client *redis.Client
	prefix string
	origin string
	logger zerolog.Logger
	ready  chan struct{}
}

// NewRedisRelay creates a relay on the given client.
func NewRedisRelay(client *redis.Client, prefix string, logger zerolog.Logger) *RedisRelay {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisRelay{
		client: client,
		prefix: prefix,
		origin: uuid.NewString(),
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Publish sends ev to every other process. Failures are logged; local
// subscribers are served by the in-process broker regardless.
func (r *RedisRelay) Publish(ctx context.Context, ev domain.JobProgress) {
	payload, err := json.Marshal(envelope{Origin: r.origin, Event: ev})
	if err != nil {
		r.logger.Error().Err(err).Str("job_id", ev.JobID).Msg("progress: encode event")
		return
	}
	if err := r.client.Publish(ctx, r.prefix+ev.JobID, payload).Err(); err != nil {
		r.logger.Warn().Err(err).Str("job_id", ev.JobID).Msg("progress: redis publish failed")
	}
}

// Ready is closed once Run holds an active subscription.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run forwards events from other processes into sink until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, sink Publisher) error {
	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	close(r.ready)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("progress: redis subscription closed")
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("progress: drop malformed event")
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			sink.Publish(ctx, env.Event)
		}
	}
}
