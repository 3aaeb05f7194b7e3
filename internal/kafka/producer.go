package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dejobratic/orderflow/internal/telemetry"
	"github.com/twmb/franz-go/pkg/kgo"
)

var ErrEmptyPayload = errors.New("kafka payload is empty")

// Producer publishes records synchronously, waiting for all in-sync replicas.
type Producer struct {
	client *kgo.Client
}

func NewProducer(brokers []string, clientID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer requires at least one broker")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: client}, nil
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	rec := NewRecord(topic, key, payload, time.Now().UTC())
	rec.Headers = traceHeaders(ctx)
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish to kafka topic %s: %w", topic, err)
	}
	return nil
}

// Ping checks that at least one broker is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() {
	p.client.Close()
}

// NewRecord builds the record sent for a message. The key keeps all records
// of one order on the same partition.
func NewRecord(topic, key string, payload []byte, ts time.Time) *kgo.Record {
	rec := &kgo.Record{
		Topic:     topic,
		Value:     payload,
		Timestamp: ts,
	}
	if key != "" {
		rec.Key = []byte(key)
	}
	return rec
}

func traceHeaders(ctx context.Context) []kgo.RecordHeader {
	carrier := telemetry.InjectHeaders(ctx)
	if len(carrier) == 0 {
		return nil
	}
	headers := make([]kgo.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Key < headers[j].Key })
	return headers
}
