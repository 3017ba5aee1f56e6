// The trade memory service keeps a short sliding window of recent trades
// in memory, consumed from the trades topic with group autocommit, and
// answers getTradesForPeriod over gRPC. Queries outside the window are
// routed to the persistence service.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"powerpnl/internal/bus"
	"powerpnl/internal/codec"
	"powerpnl/internal/config"
	"powerpnl/internal/tradebuf"
	"powerpnl/internal/tradesvc"
)

const sweepInterval = time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Initializing trade memory service...")
	log.Printf("Kafka: %v", cfg.KafkaBrokers)
	log.Printf("gRPC Port: %d", cfg.GRPCPort)
	log.Printf("Retention: %s (queried range %s)", cfg.MemoryRetention, cfg.QueriedRangeRetention)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buffer := tradebuf.New(cfg.MemoryRetention, cfg.QueriedRangeRetention)

	persistence, err := tradesvc.NewClient(cfg.PersistenceServiceAddr(), cfg.WaitTimeout)
	if err != nil {
		log.Fatalf("Failed to dial persistence service: %v", err)
	}
	defer persistence.Close()

	router := tradesvc.NewRouter(buffer, persistence, cfg.WaitTimeout)

	consumer, err := bus.NewConsumer(ctx, bus.Options{
		Brokers: cfg.KafkaBrokers,
		Group:   bus.GroupTradeMemory,
		Topic:   bus.TopicTrades,
	})
	if err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	defer consumer.Close()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("Failed to listen on gRPC port %d: %v", cfg.GRPCPort, err)
	}
	grpcServer := grpc.NewServer()
	tradesvc.RegisterTradesServer(grpcServer, router)

	var wg sync.WaitGroup
	sweeperStop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		buffer.RunSweeper(sweepInterval, sweeperStop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[grpc] serving on :%d", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("[grpc] server stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			records := consumer.Poll(ctx)
			if ctx.Err() != nil {
				return
			}
			for _, rec := range records {
				trade, err := codec.ParseTrade(rec.Value, rec.Partition, rec.Offset)
				if err != nil {
					log.Printf("[DLQ] dropping trade message at %d/%d: %v", rec.Partition, rec.Offset, err)
					continue
				}
				buffer.Add(trade)
			}
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down trade memory service...")

	grpcServer.GracefulStop()
	close(sweeperStop)
	wg.Wait()

	log.Printf("Stopped. %d trades buffered, %d late arrivals observed.", buffer.Len(), buffer.LateArrivals())
}
