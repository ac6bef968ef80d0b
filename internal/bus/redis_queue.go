// Package bus is the Redis Streams message transport. Each event source
// (job requests, storage triggers, engine completions) is one stream with
// one consumer group, so horizontally scaled replicas share the work
// instead of duplicating it.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	readCount    = 32
	blockTimeout = 2 * time.Second
	retryDelay   = 200 * time.Millisecond
)

// Message is one stream entry. Attributes carry envelope metadata such as
// the storage event type; Data is the JSON payload.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Queue publishes to and subscribes from Redis streams through a single
// shared client.
type Queue struct {
	client   redis.UniversalClient
	group    string
	consumer string
	log      *logrus.Logger
}

// New connects to Redis and verifies the connection. All subscriptions
// created from this queue join the same consumer group under distinct
// consumer names derived from name.
func New(ctx context.Context, addr, password, group, consumer string, log *logrus.Logger) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		MaxRetries: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Queue{client: client, group: group, consumer: consumer, log: log}, nil
}

// Close releases the underlying Redis connection pool.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Publish appends a JSON-encoded payload to stream. Attributes become
// additional stream fields alongside the payload.
func (q *Queue) Publish(ctx context.Context, stream string, payload any, attributes map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	values := map[string]any{"payload": string(data)}
	for key, value := range attributes {
		values["attr:"+key] = value
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Err()
}

// Subscribe joins the consumer group on stream and starts the read loop.
// The returned subscription delivers entries on Messages until ctx is
// cancelled.
func (q *Queue) Subscribe(ctx context.Context, stream string) (*Subscription, error) {
	if err := q.ensureGroup(ctx, stream); err != nil {
		return nil, err
	}
	sub := &Subscription{
		queue:  q,
		stream: stream,
		ch:     make(chan Message, readCount),
	}
	go sub.run(ctx)
	return sub, nil
}

func (q *Queue) ensureGroup(ctx context.Context, stream string) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, q.group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Subscription is a consumer-group reader over one stream.
type Subscription struct {
	queue  *Queue
	stream string
	ch     chan Message
}

// Messages is the delivery channel. It closes when the subscription's
// context is cancelled.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Ack marks an entry as processed within the consumer group. Delivery is
// at-most-once: handlers ack before the outcome of their work is known.
func (s *Subscription) Ack(ctx context.Context, id string) {
	if err := s.queue.client.XAck(ctx, s.stream, s.queue.group, id).Err(); err != nil {
		s.queue.log.WithFields(logrus.Fields{
			"stream": s.stream,
			"id":     id,
		}).WithError(err).Warn("stream ack failed")
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.ch)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.queue.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.queue.group,
			Consumer: s.queue.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    readCount,
			Block:    blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			s.queue.log.WithField("stream", s.stream).WithError(err).Warn("stream read failed")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, str := range streams {
			for _, entry := range str.Messages {
				msg, ok := decodeEntry(entry)
				if !ok {
					// Not our envelope shape; drop it so the group
					// does not redeliver it forever.
					s.Ack(ctx, entry.ID)
					continue
				}
				select {
				case s.ch <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func decodeEntry(entry redis.XMessage) (Message, bool) {
	msg := Message{ID: entry.ID}
	for key, value := range entry.Values {
		text, ok := value.(string)
		if !ok {
			continue
		}
		switch {
		case key == "payload":
			msg.Data = []byte(text)
		case strings.HasPrefix(key, "attr:"):
			if msg.Attributes == nil {
				msg.Attributes = make(map[string]string)
			}
			msg.Attributes[strings.TrimPrefix(key, "attr:")] = text
		}
	}
	return msg, len(msg.Data) > 0
}
