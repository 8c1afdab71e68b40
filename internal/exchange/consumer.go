package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"wgmesh/internal/logging"
	"wgmesh/internal/mesh"
	"wgmesh/internal/reconcile"
)

// Reconciler applies a peer's desired state to the kernel.
type Reconciler interface {
	Reconcile(peer mesh.Peer) (reconcile.Result, error)
}

// Metrics holds Prometheus metrics for the consumer.
type Metrics struct {
	Events *prometheus.CounterVec // labels: status (applied|rejected|failed)
}

// Config configures a Consumer.
type Config struct {
	Brokers    []string
	Topic      string
	GroupID    string
	ClientID   string
	Domains    []string
	Reconciler Reconciler
	Logger     logging.Logger
	Metrics    *Metrics
}

// Consumer reads peer announcements from the exchange topic and reconciles
// them. One bad announcement must never block the partition or crash the
// process: malformed and failed events are logged, counted and dropped, so
// offsets always advance.
type Consumer struct {
	client     *kgo.Client
	logger     logging.Logger
	domains    []string
	reconciler Reconciler
	metrics    *Metrics
}

// NewConsumer creates a consumer group member for the exchange topic.
// Consumption starts at the log end: peers re-announce themselves
// periodically, and replaying history on first start would thrash the
// kernel tables with long-gone peers.
func NewConsumer(cfg Config) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		client:     client,
		logger:     cfg.Logger,
		domains:    cfg.Domains,
		reconciler: cfg.Reconciler,
		metrics:    cfg.Metrics,
	}, nil
}

// Close closes the underlying client.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

// Run polls for announcements until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fetches := c.client.PollFetches(ctx)
			if errs := fetches.Errors(); len(errs) > 0 {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Errorf("errors while polling: %v", errs)
				continue
			}

			var processed []*kgo.Record
			iter := fetches.RecordIter()
			for !iter.Done() {
				record := iter.Next()
				c.handle(record)
				processed = append(processed, record)
			}

			if len(processed) > 0 {
				if err := c.client.CommitRecords(ctx, processed...); err != nil {
					c.logger.WithError(err).Error("Failed to commit records")
				}
			}
		}
	}
}

// handle processes one announcement. Errors are terminal for the event,
// never for the consumer.
func (c *Consumer) handle(record *kgo.Record) {
	var event PeerEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		c.logger.WithError(err).WithField("offset", record.Offset).Warn("Dropping malformed peer event")
		c.count("rejected")
		return
	}
	if err := event.Validate(c.domains); err != nil {
		c.logger.WithError(err).Warn("Dropping invalid peer event")
		c.count("rejected")
		return
	}

	log := c.logger.WithFields(logging.Fields{
		"domain":     event.Domain,
		"public_key": event.PublicKey,
		"remove":     event.Remove,
	})

	if _, err := c.reconciler.Reconcile(event.Peer()); err != nil {
		log.WithError(err).Error("Failed to reconcile announced peer")
		c.count("failed")
		return
	}
	c.count("applied")
	log.Info("Applied peer announcement")
}

func (c *Consumer) count(status string) {
	if c.metrics != nil && c.metrics.Events != nil {
		c.metrics.Events.WithLabelValues(status).Inc()
	}
}

// HealthCheck pings the broker.
func (c *Consumer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// Client exposes the underlying kgo client for shared health checks.
func (c *Consumer) Client() *kgo.Client {
	return c.client
}
