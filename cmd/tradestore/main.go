// The trade persistence service consumes the trades topic with manual
// commits, batches writes into the document store on a timer, and serves
// historical getTradesForPeriod queries over gRPC for ranges that have
// left the memory service's window.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"powerpnl/internal/bus"
	"powerpnl/internal/config"
	"powerpnl/internal/persist"
	"powerpnl/internal/store"
	"powerpnl/internal/tradesvc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Initializing trade persistence service...")
	log.Printf("Kafka: %v", cfg.KafkaBrokers)
	log.Printf("Mongo: %s/%s", cfg.MongoURI, cfg.MongoDB)
	log.Printf("gRPC Port: %d", cfg.PersistenceServicePort)
	log.Printf("Batch interval: %s", cfg.BatchInterval)

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

	consumer, err := bus.NewConsumer(ctx, bus.Options{
		Brokers:      cfg.KafkaBrokers,
		Group:        bus.GroupTradePersistence,
		Topic:        bus.TopicTrades,
		ManualCommit: true,
	})
	if err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	defer consumer.Close()

	pipeline := persist.New(st, consumer, cfg.BatchInterval)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.PersistenceServicePort))
	if err != nil {
		log.Fatalf("Failed to listen on gRPC port %d: %v", cfg.PersistenceServicePort, err)
	}
	grpcServer := grpc.NewServer()
	tradesvc.RegisterTradesServer(grpcServer, tradesvc.NewStoreServer(st))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pipeline.Run(gctx)
		return nil
	})

	g.Go(func() error {
		for {
			records := consumer.Poll(gctx)
			if gctx.Err() != nil {
				return nil
			}
			for _, rec := range records {
				pipeline.Handle(rec)
			}
		}
	})

	g.Go(func() error {
		log.Printf("[grpc] serving on :%d", cfg.PersistenceServicePort)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Service failed: %v", err)
	}
	log.Printf("Stopped. %d trades pending at shutdown.", pipeline.PendingCount())
}
