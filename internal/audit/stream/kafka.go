// Package stream publishes audit entries to the monitoring Kafka topic. The
// stream is informational fan-out for alerting; the durable store remains the
// compliance source of truth, so publish failures never block a decision.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"warden/internal/audit"
)

// Publisher implements audit.Sink on a franz-go client.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher connects to the brokers and returns a publisher for topic.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish produces one entry keyed by resource so per-resource ordering is
// preserved for consumers.
func (p *Publisher) Publish(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(entry.Request.Target),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
