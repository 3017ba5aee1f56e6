// Package tradebuf holds recent trades in memory with time-based
// retention. Inserts dominate and trades arrive roughly chronologically
// per partition, so an append-ordered slice with a front-trim sweep is
// enough; queries scan the live window.
package tradebuf

import (
	"log"
	"sync"
	"time"

	"powerpnl/internal/models"
)

// Buffer is the in-memory trade window queried by the range-query router.
// Safe for concurrent use by the bus consumer and the gRPC server.
//
// The queried range is a single merged [qStart, qEnd] span covering every
// period handed out so far (bounded by its own retention). A trade whose
// timestamp lands inside that span arrived after its interval was already
// answered; it is counted and reported, not corrected.
type Buffer struct {
	mu sync.Mutex

	trades        []models.Trade
	lastTradeTime time.Time
	hasLast       bool

	qStart   time.Time
	qEnd     time.Time
	hasRange bool

	retention      time.Duration
	rangeRetention time.Duration

	lateArrivals int64

	// OnLateArrival, when set, receives trades that arrive inside the
	// already-queried range. Hook for a future reconciliation topic.
	OnLateArrival func(models.Trade)

	now func() time.Time
}

// New creates a buffer with the given retention windows
// (MEMORY_RETENTION_MS and QUERIED_RANGE_RETENTION_MS).
func New(retention, rangeRetention time.Duration) *Buffer {
	return &Buffer{
		retention:      retention,
		rangeRetention: rangeRetention,
		now:            time.Now,
	}
}

// Add appends a trade and advances lastTradeTime. If the trade falls
// inside the merged queried range it is flagged as a late arrival.
func (b *Buffer) Add(trade models.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trades = append(b.trades, trade)
	if !b.hasLast || trade.Time.After(b.lastTradeTime) {
		b.lastTradeTime = trade.Time
		b.hasLast = true
	}

	if b.hasRange && !trade.Time.Before(b.qStart) && !trade.Time.After(b.qEnd) {
		b.lateArrivals++
		log.Printf("[tradebuf] late arrival inside queried range [%s, %s]: %s %s at %s (partition=%d offset=%d)",
			b.qStart.Format(time.RFC3339), b.qEnd.Format(time.RFC3339),
			trade.Side, trade.Volume, trade.Time.Format(time.RFC3339), trade.Partition, trade.Offset)
		if b.OnLateArrival != nil {
			b.OnLateArrival(trade)
		}
	}
}

// Query returns all buffered trades with start <= time <= end, inclusive
// on both ends, in arrival order.
func (b *Buffer) Query(start, end time.Time) []models.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Trade
	for _, t := range b.trades {
		if !t.Time.Before(start) && !t.Time.After(end) {
			out = append(out, t)
		}
	}
	return out
}

// HasAny reports whether at least one buffered trade falls in [start, end].
func (b *Buffer) HasAny(start, end time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.trades {
		if !t.Time.Before(start) && !t.Time.After(end) {
			return true
		}
	}
	return false
}

// LastTradeTime returns the newest trade timestamp observed, if any.
func (b *Buffer) LastTradeTime() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTradeTime, b.hasLast
}

// UpdateQueriedRange merges [start, end] into the queried span. The upper
// bound only grows; the lower bound advances forward with the retention
// window and extends backward only when the new start is still inside it.
func (b *Buffer) UpdateQueriedRange(start, end time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.rangeRetention)

	if !b.hasRange {
		b.qStart = start
		if b.qStart.Before(cutoff) {
			b.qStart = cutoff
		}
		b.qEnd = end
		b.hasRange = true
		return
	}

	if end.After(b.qEnd) {
		b.qEnd = end
	}
	if start.Before(b.qStart) && !start.Before(cutoff) {
		b.qStart = start
	}
	if b.qStart.Before(cutoff) {
		b.qStart = cutoff
	}
}

// QueriedRange returns the current merged span, if any.
func (b *Buffer) QueriedRange() (start, end time.Time, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.qStart, b.qEnd, b.hasRange
}

// Sweep drops trades older than the retention cutoff. Trades at exactly
// the cutoff are retained. Front-trim only: trades arrive roughly in
// time order, so popping while the head is stale is sufficient.
func (b *Buffer) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.retention)
	i := 0
	for i < len(b.trades) && b.trades[i].Time.Before(cutoff) {
		i++
	}
	if i == 0 {
		return 0
	}
	// Re-slice into a fresh backing array so swept trades can be collected.
	b.trades = append([]models.Trade(nil), b.trades[i:]...)
	return i
}

// Len returns the number of buffered trades.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.trades)
}

// LateArrivals returns how many trades arrived inside the queried range.
func (b *Buffer) LateArrivals() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lateArrivals
}

// RunSweeper sweeps on the given interval until the channel is closed or
// receives. It is started by the memory service next to the consumer.
func (b *Buffer) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := b.Sweep(); n > 0 {
				log.Printf("[tradebuf] swept %d expired trades (%d remain)", n, b.Len())
			}
		}
	}
}
