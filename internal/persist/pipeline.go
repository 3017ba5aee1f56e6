// Package persist implements the trade persistence pipeline: consume the
// trades topic, batch writes to the store on a timer, and commit offsets
// under the loose highest-offset-per-partition policy.
package persist

import (
	"context"
	"log"
	"sync"
	"time"

	"powerpnl/internal/bus"
	"powerpnl/internal/codec"
	"powerpnl/internal/models"
	"powerpnl/internal/store"
)

// TradeWriter is the slice of the store the pipeline writes through.
type TradeWriter interface {
	BulkUpsertTrades(ctx context.Context, trades []models.Trade) (store.BulkResult, error)
}

// Committer acknowledges offsets to the bus.
type Committer interface {
	CommitRecords(ctx context.Context, records ...bus.Record) error
}

type pendingTrade struct {
	trade models.Trade
	rec   bus.Record
}

// Pipeline batches consumed trades and flushes them every BatchInterval.
//
// Commit discipline is deliberately loose: after any flush with at least
// one durable operation, the highest offset seen per partition is
// committed, even if a lower offset failed inside the batch. Failed
// upserts are idempotent on redelivery and bulk-write failures are rare
// enough that external reconciliation covers the gap. The commit map
// stays O(partitions).
type Pipeline struct {
	writer    TradeWriter
	committer Committer
	interval  time.Duration

	mu      sync.Mutex
	pending []pendingTrade
	highest map[int32]bus.Record
}

// New builds a pipeline flushing every interval (BATCH_INTERVAL_MS).
func New(writer TradeWriter, committer Committer, interval time.Duration) *Pipeline {
	return &Pipeline{
		writer:    writer,
		committer: committer,
		interval:  interval,
		highest:   make(map[int32]bus.Record),
	}
}

// Handle takes one delivery from the bus. Invalid payloads are logged
// and dropped; their offsets still advance with the partition's highest
// so a poison message cannot wedge the commit cursor.
func (p *Pipeline) Handle(rec bus.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.highest[rec.Partition]; !ok || rec.Offset > prev.Offset {
		p.highest[rec.Partition] = rec
	}

	trade, err := codec.ParseTrade(rec.Value, rec.Partition, rec.Offset)
	if err != nil {
		log.Printf("[DLQ] dropping trade message at %d/%d: %v", rec.Partition, rec.Offset, err)
		return
	}
	p.pending = append(p.pending, pendingTrade{trade: trade, rec: rec})
}

// Run flushes on the batch timer until ctx is cancelled, then runs one
// final flush so a clean shutdown loses nothing.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[flusher] stopping, running final flush")
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			p.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush snapshots the pending batch, bulk-upserts it, and commits under
// the loose policy. On any outcome that leaves data non-durable the
// batch is restored to the front of pending for the next tick.
func (p *Pipeline) Flush(ctx context.Context) {
	p.mu.Lock()
	toFlush := p.pending
	p.pending = nil
	commitRecs := make([]bus.Record, 0, len(p.highest))
	for _, rec := range p.highest {
		commitRecs = append(commitRecs, rec)
	}
	p.mu.Unlock()

	if len(toFlush) == 0 {
		return
	}

	trades := make([]models.Trade, len(toFlush))
	for i, pt := range toFlush {
		trades[i] = pt.trade
	}

	res, err := p.writer.BulkUpsertTrades(ctx, trades)
	successful := res.Successful()

	switch {
	case err == nil:
		// all durable
	case store.IsPartialBulkFailure(err) && successful > 0:
		// Failed operations reappear on redelivery and upsert
		// idempotently; commit anyway.
		log.Printf("[flusher] partial bulk failure, %d/%d durable, committing highest offsets: %v",
			successful, len(toFlush), err)
	case store.IsPartialBulkFailure(err):
		log.Printf("[flusher] bulk write failed entirely, restoring %d trades: %v", len(toFlush), err)
		p.restore(toFlush)
		return
	default:
		log.Printf("[flusher] bulk write error, restoring %d trades: %v", len(toFlush), err)
		p.restore(toFlush)
		return
	}

	if successful == 0 {
		// Nothing durable (e.g. empty result on a driver edge); retry.
		p.restore(toFlush)
		return
	}

	if err := p.committer.CommitRecords(ctx, commitRecs...); err != nil {
		log.Printf("[flusher] offset commit failed, batch will retry: %v", err)
		p.restore(toFlush)
		return
	}
	log.Printf("[flusher] flushed %d trades (%d upserted, %d matched), committed %d partitions",
		len(toFlush), res.Upserted, res.Matched, len(commitRecs))
}

// restore puts a failed batch back at the front of pending, preserving
// arrival order ahead of anything consumed meanwhile.
func (p *Pipeline) restore(toFlush []pendingTrade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(toFlush, p.pending...)
}

// PendingCount reports the trades awaiting the next flush.
func (p *Pipeline) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
