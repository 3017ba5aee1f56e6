// Package bus wraps the franz-go Kafka client with the consumption and
// commit discipline the pipelines need: manual commits for the
// persistence and calculation services, autocommit for the ephemeral
// memory buffer.
package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"powerpnl/internal/retry"
)

// Topic names on the bus.
const (
	TopicTrades = "trades"
	TopicMarket = "market"
)

// Consumer group IDs, one per service.
const (
	GroupTradeMemory      = "trade-memory-service-group"
	GroupTradePersistence = "trade-persistence-service-group"
	GroupCalculation      = "calculation-service-group"
)

const (
	sessionTimeout    = 30 * time.Second
	heartbeatInterval = 3 * time.Second
)

// Options configures a Consumer.
type Options struct {
	Brokers []string
	Group   string
	Topic   string

	// ManualCommit disables autocommit; the caller commits explicitly
	// through CommitRecords.
	ManualCommit bool
}

// Consumer is a group consumer on a single topic.
type Consumer struct {
	client *kgo.Client
	opts   Options
}

// Record is one delivery from the bus.
type Record struct {
	Partition int32
	Offset    int64
	Value     []byte

	rec *kgo.Record
}

// NewConsumer builds the client and verifies broker connectivity with
// exponential backoff (five attempts, then the error escalates and the
// service exits fatally at startup).
func NewConsumer(ctx context.Context, opts Options) (*Consumer, error) {
	kopts := []kgo.Opt{
		kgo.SeedBrokers(opts.Brokers...),
		kgo.ConsumerGroup(opts.Group),
		kgo.ConsumeTopics(opts.Topic),
		kgo.SessionTimeout(sessionTimeout),
		kgo.HeartbeatInterval(heartbeatInterval),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.ClientID("powerpnl"),
	}
	if opts.ManualCommit {
		kopts = append(kopts, kgo.DisableAutoCommit())
	}

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build kafka client: %w", err)
	}

	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			log.Printf("[bus] broker ping failed for group %s: %v", opts.Group, err)
			return err
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka unreachable after retries: %w", err)
	}

	log.Printf("[bus] consumer ready (topic=%s group=%s manualCommit=%v)", opts.Topic, opts.Group, opts.ManualCommit)
	return &Consumer{client: client, opts: opts}, nil
}

// Poll blocks until records arrive or ctx is done, and returns the batch.
// Per-partition fetch errors are logged and the healthy partitions still
// deliver; the group rebalance protocol recovers the rest.
func (c *Consumer) Poll(ctx context.Context) []Record {
	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil
	}
	fetches.EachError(func(topic string, partition int32, err error) {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[bus] fetch error on %s/%d: %v", topic, partition, err)
	})

	var out []Record
	fetches.EachRecord(func(r *kgo.Record) {
		out = append(out, Record{
			Partition: r.Partition,
			Offset:    r.Offset,
			Value:     r.Value,
			rec:       r,
		})
	})
	return out
}

// CommitRecords synchronously commits the given records' offsets (each as
// record offset + 1, the next offset to consume).
func (c *Consumer) CommitRecords(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	recs := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		recs = append(recs, r.rec)
	}
	if err := c.client.CommitRecords(ctx, recs...); err != nil {
		return fmt.Errorf("offset commit failed: %w", err)
	}
	return nil
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}
