package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Broker carries envelopes between relay instances. origin identifies the
// publishing instance so subscribers can skip their own messages.
type Broker interface {
	Publish(ctx context.Context, origin string, env Envelope) error
	Subscribe(ctx context.Context, origin string, deliver func(Envelope)) error
}

const channelPrefix = "mocksync:project:"

type brokerFrame struct {
	Origin   string   `json:"origin"`
	Envelope Envelope `json:"envelope"`
}

// RedisBroker fans envelopes out over Redis pub/sub, one channel per project.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// ConnectRedis dials addr and checks it answers.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return client, nil
}

func ProjectChannel(projectID string) string {
	return channelPrefix + projectID
}

func (b *RedisBroker) Publish(ctx context.Context, origin string, env Envelope) error {
	frame, err := encodeFrame(origin, env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, ProjectChannel(env.ProjectID), frame).Err()
}

// Subscribe blocks delivering envelopes published by other instances until
// ctx is done.
func (b *RedisBroker) Subscribe(ctx context.Context, origin string, deliver func(Envelope)) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, from, err := decodeFrame(msg.Channel, []byte(msg.Payload))
			if err != nil || from == origin {
				continue
			}
			deliver(env)
		}
	}
}

func encodeFrame(origin string, env Envelope) ([]byte, error) {
	if env.ProjectID == "" {
		return nil, fmt.Errorf("envelope %s has no project", env.Type)
	}
	return json.Marshal(brokerFrame{Origin: origin, Envelope: env})
}

// decodeFrame also checks the envelope belongs to the channel it came from.
func decodeFrame(channel string, raw []byte) (Envelope, string, error) {
	var frame brokerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Envelope{}, "", err
	}
	if strings.TrimPrefix(channel, channelPrefix) != frame.Envelope.ProjectID {
		return Envelope{}, "", fmt.Errorf("envelope for %s on channel %s", frame.Envelope.ProjectID, channel)
	}
	return frame.Envelope, frame.Origin, nil
}
