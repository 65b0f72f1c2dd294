// Package eventbus is the event bus and persistence glue (spec §2
// "Event bus & persistence glue"): topic producers/consumers carrying
// inbound conversation turns and buyer feedback between the ingress
// surface and the core pipeline. Grounded on the redpanda
// producer/consumer shape in other_examples/ (kgo client,
// consumer-group polling loop), trimmed to this core's two topics and
// re-expressed with zap logging instead of slog to match the rest of
// the codebase's ambient stack.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topic names (spec §2 data flow: conversation turns in, buyer
// feedback in).
const (
	TopicConversationTurns = "conversation.turns"
	TopicBuyerFeedback     = "buyer.feedback"
)

// Producer publishes JSON-encoded events to a topic.
type Producer struct {
	client *kgo.Client
	log    *zap.Logger
}

// NewProducer builds a Producer against brokers.
func NewProducer(brokers []string, log *zap.Logger) (*Producer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, err
	}
	return &Producer{client: client, log: log}, nil
}

// PublishJSON marshals v and produces it to topic keyed by key,
// blocking until the broker acknowledges.
func (p *Producer) PublishJSON(ctx context.Context, topic, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: body}
	results := p.client.ProduceSync(ctx, record)
	return results.FirstErr()
}

// Close releases the underlying client.
func (p *Producer) Close() { p.client.Close() }

// Handler processes one decoded record; a non-nil error leaves the
// record unmarked for commit. The consumer does not retry it, and a
// later record marked on the same partition commits past it.
type Handler func(ctx context.Context, key string, value []byte) error

// Consumer drains a single topic within a consumer group.
type Consumer struct {
	client *kgo.Client
	topic  string
	log    *zap.Logger
}

// NewConsumer builds a Consumer subscribed to topic under groupID.
func NewConsumer(brokers []string, groupID, topic string, log *zap.Logger) (*Consumer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client, topic: topic, log: log}, nil
}

// Run polls records from the topic and invokes handle for each,
// marking the record committed only on success. Blocks until ctx is
// cancelled (spec §5 "every suspension is cancellable").
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.log.Error("eventbus poll error", zap.String("topic", e.Topic), zap.Int32("partition", e.Partition), zap.Error(e.Err))
			}
			continue
		}

		fetches.EachRecord(func(r *kgo.Record) {
			if err := handle(ctx, string(r.Key), r.Value); err != nil {
				c.log.Error("eventbus handler failed", zap.String("topic", r.Topic), zap.Int64("offset", r.Offset), zap.Error(err))
				return
			}
			c.client.MarkCommitRecords(r)
		})
	}
}

// Close releases the underlying client.
func (c *Consumer) Close() { c.client.Close() }
