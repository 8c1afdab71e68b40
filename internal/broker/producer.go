// Package broker exposes the key-exchange HTTP API and publishes accepted
// announcements onto the message bus for the workers.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"wgmesh/internal/exchange"
	"wgmesh/internal/logging"
)

// KafkaPublisher produces peer announcements to the exchange topic.
type KafkaPublisher struct {
	client *kgo.Client
	logger logging.Logger
	topic  string
}

// NewKafkaPublisher creates a producer for the exchange topic.
func NewKafkaPublisher(brokers []string, topic, clientID string, logger logging.Logger) (*KafkaPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		logger: logger,
		topic:  topic,
	}, nil
}

// Close closes the underlying client.
func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}

// Publish writes one peer announcement, keyed by domain so every worker
// sees a domain's announcements in order.
func (p *KafkaPublisher) Publish(event exchange.PeerEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal peer event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Domain),
		Value: value,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce peer event: %w", err)
	}
	return nil
}

// HealthCheck pings the broker.
func (p *KafkaPublisher) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// Client exposes the underlying kgo client for shared health checks.
func (p *KafkaPublisher) Client() *kgo.Client {
	return p.client
}
