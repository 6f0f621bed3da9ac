package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "inbox:user:"

type relayFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay shares deliveries between service instances over Redis pub/sub.
type RedisRelay struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisRelay(client *redis.Client, log *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, log: log}
}

func relayChannel(recipient int64) string {
	return relayChannelPrefix + strconv.FormatInt(recipient, 10)
}

func recipientFromChannel(channel string) (int64, error) {
	raw, ok := strings.CutPrefix(channel, relayChannelPrefix)
	if !ok {
		return 0, fmt.Errorf("unexpected relay channel %q", channel)
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (r *RedisRelay) Publish(ctx context.Context, recipient int64, event string, payload []byte) error {
	data, err := json.Marshal(relayFrame{Event: event, Payload: payload})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, relayChannel(recipient), data).Err()
}

// Run delivers relayed events to this instance's connections until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	sub := r.client.PSubscribe(ctx, relayChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe relay: %w", err)
	}
	r.log.Info("redis relay subscribed", "pattern", relayChannelPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch(hub, msg)
		}
	}
}

func (r *RedisRelay) dispatch(hub *Hub, msg *redis.Message) {
	recipient, err := recipientFromChannel(msg.Channel)
	if err != nil {
		r.log.Warn("relay message ignored", "channel", msg.Channel, "error", err)
		return
	}
	var frame relayFrame
	if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
		r.log.Warn("relay message ignored", "channel", msg.Channel, "error", err)
		return
	}
	hub.DeliverLocal(recipient, frame.Event, frame.Payload)
}
