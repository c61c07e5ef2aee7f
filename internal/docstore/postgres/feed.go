package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChangeFeed carries "collection changed" notifications between server
// instances sharing one database.
type ChangeFeed interface {
	Publish(ctx context.Context, collection string) error
	// Listen calls fn for every change published by another instance and
	// blocks until ctx is done.
	Listen(ctx context.Context, fn func(collection string)) error
}

// DefaultChannel is the Redis channel notifications travel on.
const DefaultChannel = "vehiclecheck:documents"

// RedisFeed is a ChangeFeed over Redis pub/sub. Each instance tags its
// messages with a random origin so it can skip its own.
type RedisFeed struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisFeed(client *redis.Client, channel string) *RedisFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisFeed{client: client, channel: channel, origin: uuid.NewString()}
}

func (f *RedisFeed) Publish(ctx context.Context, collection string) error {
	return f.client.Publish(ctx, f.channel, formatMessage(f.origin, collection)).Err()
}

func (f *RedisFeed) Listen(ctx context.Context, fn func(collection string)) error {
	ps := f.client.Subscribe(ctx, f.channel)
	defer ps.Close()

	// Wait for the subscription to be confirmed before reporting success.
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, collection, ok := parseMessage(msg.Payload)
			if !ok || origin == f.origin {
				continue
			}
			fn(collection)
		}
	}
}

func formatMessage(origin, collection string) string {
	return origin + "|" + collection
}

func parseMessage(payload string) (origin, collection string, ok bool) {
	origin, collection, ok = strings.Cut(payload, "|")
	if !ok || origin == "" || collection == "" {
		return "", "", false
	}
	return origin, collection, true
}
