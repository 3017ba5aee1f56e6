// The calculation service joins the market interval stream against the
// trade stream: for every interval it fetches the trades inside it,
// computes the PnL in decimal, and stores market and PnL atomically.
// Offsets commit strictly in order per partition. The aggregated PnL
// summary and pipeline status are served over HTTP.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"powerpnl/internal/api"
	"powerpnl/internal/bus"
	"powerpnl/internal/calcpipe"
	"powerpnl/internal/config"
	"powerpnl/internal/pnlcalc"
	"powerpnl/internal/pnlview"
	"powerpnl/internal/store"
	"powerpnl/internal/tradesvc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Initializing calculation service...")
	log.Printf("Kafka: %v", cfg.KafkaBrokers)
	log.Printf("Mongo: %s/%s", cfg.MongoURI, cfg.MongoDB)
	log.Printf("Trades service: %s", cfg.TradesServiceAddr())
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Fee: %s/MWh", cfg.TradingFeePerMWh)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st.Close(closeCtx)
	}()

	if err := st.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	trades, err := tradesvc.NewClient(cfg.TradesServiceAddr(), cfg.WaitTimeout)
	if err != nil {
		log.Fatalf("Failed to dial trades service: %v", err)
	}
	defer trades.Close()

	calc, err := pnlcalc.New(cfg.TradingFeePerMWh)
	if err != nil {
		log.Fatalf("Invalid trading fee: %v", err)
	}

	consumer, err := bus.NewConsumer(ctx, bus.Options{
		Brokers:      cfg.KafkaBrokers,
		Group:        bus.GroupCalculation,
		Topic:        bus.TopicMarket,
		ManualCommit: true,
	})
	if err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	defer consumer.Close()

	processor, err := calcpipe.NewProcessor(st, trades, calc, consumer, cfg.MarketBufferSize)
	if err != nil {
		log.Fatalf("Failed to build processor: %v", err)
	}

	apiServer := api.NewServer(cfg, pnlview.NewView(st), processor.Tracker())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			records := consumer.Poll(gctx)
			if gctx.Err() != nil {
				return nil
			}
			for _, rec := range records {
				processor.Handle(gctx, rec)
			}
		}
	})

	g.Go(func() error {
		log.Printf("[api] serving on :%d", cfg.HTTPPort)
		return apiServer.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Service failed: %v", err)
	}

	// Let in-flight intervals finish so their commits land before the
	// consumer leaves the group.
	processor.Drain()
	log.Println("Stopped.")
}
