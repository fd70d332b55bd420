package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/gogotex/docflow/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisFanout mirrors bus events to Redis pub/sub so that other instances can
// bust their caches, and relays events published by other instances.
// Messages go to "<prefix>:<documentId>".
type RedisFanout struct {
	client *redis.Client
	prefix string
	origin string
}

func NewRedisFanout(client *redis.Client, prefix string) *RedisFanout {
	if prefix == "" {
		prefix = "docflow:events"
	}
	return &RedisFanout{client: client, prefix: prefix, origin: uuid.NewString()}
}

func (f *RedisFanout) channel(documentID string) string {
	return f.prefix + ":" + documentID
}

// Handler returns a bus Handler publishing every event to Redis.
func (f *RedisFanout) Handler(ctx context.Context) Handler {
	return func(ev Event) {
		b, err := json.Marshal(envelope{Origin: f.origin, Event: ev})
		if err != nil {
			logger.Errorf("encode event %s: %v", ev.Type, err)
			return
		}
		if err := f.client.Publish(ctx, f.channel(ev.DocumentID), b).Err(); err != nil {
			logger.Warnf("publish event %s for %s: %v", ev.Type, ev.DocumentID, err)
		}
	}
}

// Relay listens for events published by other instances and passes them to h.
// It blocks until ctx is cancelled.
func (f *RedisFanout) Relay(ctx context.Context, h Handler) error {
	sub := f.client.PSubscribe(ctx, f.prefix+":*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(msg.Channel, f.prefix+":") {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warnf("decode relayed event on %s: %v", msg.Channel, err)
				continue
			}
			if env.Origin == f.origin {
				continue
			}
			deliver(h, env.Event)
		}
	}
}
