package calcpipe

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"powerpnl/internal/bus"
	"powerpnl/internal/codec"
	"powerpnl/internal/models"
	"powerpnl/internal/pnlcalc"
	"powerpnl/internal/retry"
)

// MarketStore is the slice of the store the processor writes through.
type MarketStore interface {
	MarketExists(ctx context.Context, start, end time.Time) (bool, error)
	SaveMarketWithPnL(ctx context.Context, market models.MarketInterval, pnl models.PnL) (skipped bool, err error)
}

// TradeSource answers range queries for the interval's trades (the
// memory service's router RPC).
type TradeSource interface {
	GetTradesForPeriod(ctx context.Context, start, end time.Time) ([]models.Trade, error)
}

type intervalKey struct {
	start int64
	end   int64
}

func keyOf(m models.MarketInterval) intervalKey {
	return intervalKey{start: m.StartTime.UnixNano(), end: m.EndTime.UnixNano()}
}

// Processor consumes market messages and produces PnL records. The bus
// handler never blocks: each interval is processed in its own goroutine
// and the tracker serializes commit advancement.
type Processor struct {
	store   MarketStore
	trades  TradeSource
	calc    *pnlcalc.Calculator
	tracker *Tracker

	// recent is a bounded buffer of intervals processed by this
	// instance; it short-circuits the store lookup on hot redelivery.
	recent *lru.Cache[intervalKey, struct{}]

	wg sync.WaitGroup
}

// NewProcessor builds the pipeline. bufferSize is MARKET_BUFFER_SIZE.
func NewProcessor(store MarketStore, trades TradeSource, calc *pnlcalc.Calculator, committer Committer, bufferSize int) (*Processor, error) {
	recent, err := lru.New[intervalKey, struct{}](bufferSize)
	if err != nil {
		return nil, fmt.Errorf("invalid market buffer size %d: %w", bufferSize, err)
	}
	return &Processor{
		store:   store,
		trades:  trades,
		calc:    calc,
		tracker: NewTracker(committer),
		recent:  recent,
	}, nil
}

// Tracker exposes the commit state for the status endpoint.
func (p *Processor) Tracker() *Tracker { return p.tracker }

// Handle takes one delivery from the bus and returns immediately.
// Invalid messages are dead-lettered and completed as no-ops, so the
// commit frontier passes over them in order like any other offset.
func (p *Processor) Handle(ctx context.Context, rec bus.Record) {
	market, err := codec.ParseMarket(rec.Value, rec.Partition, rec.Offset)
	if err != nil {
		log.Printf("[DLQ] dropping market message at %d/%d: %v", rec.Partition, rec.Offset, err)
		// A dead-lettered offset still has to clear the in-order
		// frontier or every later offset would wait forever. The
		// completion goes through a task so the handler never waits on
		// a commit RPC.
		if p.tracker.Begin(rec) {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.tracker.Complete(ctx, rec)
			}()
		}
		return
	}

	if !p.tracker.Begin(rec) {
		log.Printf("[calc] duplicate in-flight delivery %d/%d skipped", rec.Partition, rec.Offset)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		skipped, err := p.ProcessMarket(ctx, market)
		if err != nil {
			log.Printf("[calc] interval [%s, %s] at %d/%d failed, awaiting redelivery: %v",
				market.StartTime.Format(time.RFC3339), market.EndTime.Format(time.RFC3339),
				rec.Partition, rec.Offset, err)
			p.tracker.Fail(rec)
			return
		}
		if skipped {
			log.Printf("[calc] interval [%s, %s] already processed, skipped",
				market.StartTime.Format(time.RFC3339), market.EndTime.Format(time.RFC3339))
		}
		p.tracker.Complete(ctx, rec)
	}()
}

// ProcessMarket computes and persists the PnL for one interval. It is
// idempotent: a previously processed interval (in the recent buffer, in
// the store, or written concurrently) reports skipped=true.
func (p *Processor) ProcessMarket(ctx context.Context, market models.MarketInterval) (skipped bool, err error) {
	key := keyOf(market)
	if p.recent.Contains(key) {
		return true, nil
	}

	exists, err := p.store.MarketExists(ctx, market.StartTime, market.EndTime)
	if err != nil {
		return false, fmt.Errorf("market existence check failed: %w", err)
	}
	if exists {
		p.recent.Add(key, struct{}{})
		return true, nil
	}

	trades, err := p.fetchTrades(ctx, market.StartTime, market.EndTime)
	if err != nil {
		return false, fmt.Errorf("trade fetch failed: %w", err)
	}

	pnl, err := p.calc.Compute(market, trades)
	if err != nil {
		return false, fmt.Errorf("pnl computation failed: %w", err)
	}

	skipped, err = p.store.SaveMarketWithPnL(ctx, market, pnl)
	if err != nil {
		return false, err
	}
	p.recent.Add(key, struct{}{})
	return skipped, nil
}

// fetchTrades calls the trade source with exponential backoff.
func (p *Processor) fetchTrades(ctx context.Context, start, end time.Time) ([]models.Trade, error) {
	var trades []models.Trade
	err := backoff.Retry(func() error {
		var err error
		trades, err = p.trades.GetTradesForPeriod(ctx, start, end)
		if err != nil {
			log.Printf("[calc] trade fetch for [%s, %s] failed, backing off: %v",
				start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}
		return err
	}, backoff.WithContext(retry.Policy(retry.DefaultInitial), ctx))
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// Drain waits for all in-flight processing tasks to finish.
func (p *Processor) Drain() {
	p.wg.Wait()
}
