package tradesvc

import (
	"context"
	"log"
	"time"

	"powerpnl/internal/models"
	"powerpnl/internal/tradebuf"
)

// TradeFetcher is the downstream history source (the persistence
// service's range-query RPC).
type TradeFetcher interface {
	GetTradesForPeriod(ctx context.Context, start, end time.Time) ([]models.Trade, error)
}

// Router answers range queries from the memory buffer when it has hits,
// otherwise from the persistence service. Before answering from memory
// it waits, bounded, for a trade later than the period's end: a market
// interval often arrives on the bus milliseconds after it closes while
// its last trades are still in flight, and observing a strictly later
// trade is a strong signal the buffer is complete for the period.
type Router struct {
	buffer      *tradebuf.Buffer
	persistence TradeFetcher

	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewRouter wires the buffer and the history fallback. waitTimeout is
// WAIT_TIMEOUT_MS; it bounds both the memory wait and the fallback RPC.
func NewRouter(buffer *tradebuf.Buffer, persistence TradeFetcher, waitTimeout time.Duration) *Router {
	return &Router{
		buffer:       buffer,
		persistence:  persistence,
		waitTimeout:  waitTimeout,
		pollInterval: 100 * time.Millisecond,
	}
}

// Trades returns the trades for [start, end], inclusive. Persistence
// failures degrade to an empty result: the caller prefers a zero-trade
// interval over a failed one.
func (r *Router) Trades(ctx context.Context, start, end time.Time) []models.Trade {
	r.buffer.UpdateQueriedRange(start, end)
	t0, seen := r.buffer.LastTradeTime()

	if r.buffer.HasAny(start, end) {
		r.waitForLaterTrade(ctx, t0, seen, end)
		return r.buffer.Query(start, end)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.waitTimeout)
	defer cancel()
	trades, err := r.persistence.GetTradesForPeriod(fetchCtx, start, end)
	if err != nil {
		log.Printf("[router] persistence query for [%s, %s] failed, returning empty: %v",
			start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		return nil
	}
	return trades
}

// waitForLaterTrade polls until a fresh observation t1 != t0 satisfies
// t1 > end, or the bounded wait elapses. If t0 is already past the end
// the buffer is complete and there is nothing to wait for.
func (r *Router) waitForLaterTrade(ctx context.Context, t0 time.Time, seen bool, end time.Time) {
	if seen && t0.After(end) {
		return
	}

	deadline := time.NewTimer(r.waitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			log.Printf("[router] wait for trade past %s timed out after %s", end.Format(time.RFC3339), r.waitTimeout)
			return
		case <-ticker.C:
			t1, ok := r.buffer.LastTradeTime()
			if !ok {
				continue
			}
			if (!seen || !t1.Equal(t0)) && t1.After(end) {
				return
			}
		}
	}
}

// GetTradesForPeriod implements TradesServer for the memory service.
// Per contract it never surfaces persistence errors; malformed bounds
// are the only failure.
func (r *Router) GetTradesForPeriod(ctx context.Context, req *GetTradesRequest) (*GetTradesResponse, error) {
	start, end, err := req.Period()
	if err != nil {
		return nil, invalidArgument(err)
	}
	return &GetTradesResponse{Trades: ToWire(r.Trades(ctx, start, end))}, nil
}
