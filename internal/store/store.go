// Package store is the MongoDB adapter behind the pipelines: the trades
// archive, the markets collection, and the derived pnls collection.
// Writes are idempotent under redelivery: trades upsert on
// (partition, offset) and market/PnL inserts treat duplicate keys as a
// concurrent writer having won.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"powerpnl/internal/models"
	"powerpnl/internal/retry"
)

// Collection names.
const (
	CollTrades  = "trades"
	CollMarkets = "markets"
	CollPnls    = "pnls"
)

// Store wraps the Mongo client and the three collections.
type Store struct {
	client  *mongo.Client
	trades  *mongo.Collection
	markets *mongo.Collection
	pnls    *mongo.Collection
}

// Connect dials MongoDB with exponential backoff and pings the primary.
// Failure after the final attempt is fatal to the caller.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	var client *mongo.Client
	err := retry.Do(ctx, func() error {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		c, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
		if err != nil {
			log.Printf("[store] connect failed: %v", err)
			return err
		}
		if err := c.Ping(connectCtx, readpref.Primary()); err != nil {
			log.Printf("[store] ping failed: %v", err)
			_ = c.Disconnect(connectCtx)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb unreachable after retries: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client:  client,
		trades:  db.Collection(CollTrades),
		markets: db.Collection(CollMarkets),
		pnls:    db.Collection(CollPnls),
	}, nil
}

// EnsureIndexes creates the unique and secondary indexes at startup, the
// moral equivalent of the schema migration step.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.trades.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "partition", Value: 1}, {Key: "offset", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "time", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create trades indexes: %w", err)
	}

	_, err = s.markets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "partition", Value: 1}, {Key: "offset", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "startTime", Value: 1}, {Key: "endTime", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create markets indexes: %w", err)
	}

	_, err = s.pnls.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "marketStartTime", Value: 1}, {Key: "marketEndTime", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create pnls indexes: %w", err)
	}
	return nil
}

// BulkResult is the outcome of a bulk trade upsert. Matched counts
// idempotent duplicates; both upserted and matched are safe outcomes.
type BulkResult struct {
	Upserted int64
	Matched  int64
}

// Successful is the number of operations that landed durably.
func (r BulkResult) Successful() int64 { return r.Upserted + r.Matched }

// BulkUpsertTrades issues an unordered bulk upsert keyed by
// (partition, offset). On partial failure the returned result still
// carries the counts of the operations that succeeded, alongside the
// bulk-write error.
func (s *Store) BulkUpsertTrades(ctx context.Context, trades []models.Trade) (BulkResult, error) {
	if len(trades) == 0 {
		return BulkResult{}, nil
	}

	ops := make([]mongo.WriteModel, 0, len(trades))
	for _, t := range trades {
		ops = append(ops, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "partition", Value: t.Partition}, {Key: "offset", Value: t.Offset}}).
			SetReplacement(t).
			SetUpsert(true))
	}

	res, err := s.trades.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false))
	var out BulkResult
	if res != nil {
		out = BulkResult{Upserted: res.UpsertedCount, Matched: res.MatchedCount}
	}
	if err != nil {
		return out, fmt.Errorf("bulk trade upsert failed: %w", err)
	}
	return out, nil
}

// IsPartialBulkFailure reports whether err is a bulk-write error where
// individual operations failed but others may have succeeded.
func IsPartialBulkFailure(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	return len(bwe.WriteErrors) > 0
}

// TradesInRange returns stored trades with start <= time <= end, ordered
// by time ascending.
func (s *Store) TradesInRange(ctx context.Context, start, end time.Time) ([]models.Trade, error) {
	filter := bson.D{{Key: "time", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lte", Value: end}}}}
	cursor, err := s.trades.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("trade range query failed: %w", err)
	}
	var trades []models.Trade
	if err := cursor.All(ctx, &trades); err != nil {
		return nil, fmt.Errorf("trade range decode failed: %w", err)
	}
	return trades, nil
}

// MarketExists reports whether a market record with the exact
// (startTime, endTime) is already stored.
func (s *Store) MarketExists(ctx context.Context, start, end time.Time) (bool, error) {
	filter := bson.D{{Key: "startTime", Value: start}, {Key: "endTime", Value: end}}
	err := s.markets.FindOne(ctx, filter, options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}})).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("market lookup failed: %w", err)
	}
	return true, nil
}

// SaveMarketWithPnL inserts the market record and its derived PnL record
// in a single transaction. A duplicate key on either means a concurrent
// writer already persisted this interval; the transaction is rolled back
// and skipped=true is returned. Any other error is surfaced.
func (s *Store) SaveMarketWithPnL(ctx context.Context, market models.MarketInterval, pnl models.PnL) (skipped bool, err error) {
	market.CreatedAt = time.Now().UTC()

	session, err := s.client.StartSession()
	if err != nil {
		return false, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.markets.InsertOne(sc, market); err != nil {
			return nil, err
		}
		if _, err := s.pnls.InsertOne(sc, pnl); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return true, nil
		}
		return false, fmt.Errorf("market+pnl transaction failed: %w", err)
	}
	return false, nil
}

// LatestPnL returns the most recent PnL record by marketEndTime, or nil
// when the collection is empty.
func (s *Store) LatestPnL(ctx context.Context) (*models.PnL, error) {
	var pnl models.PnL
	err := s.pnls.FindOne(ctx, bson.D{}, options.FindOne().SetSort(bson.D{{Key: "marketEndTime", Value: -1}})).Decode(&pnl)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest pnl lookup failed: %w", err)
	}
	return &pnl, nil
}

// PnLsSince returns all PnL records with marketEndTime >= since.
func (s *Store) PnLsSince(ctx context.Context, since time.Time) ([]models.PnL, error) {
	filter := bson.D{{Key: "marketEndTime", Value: bson.D{{Key: "$gte", Value: since}}}}
	cursor, err := s.pnls.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("pnl window query failed: %w", err)
	}
	var pnls []models.PnL
	if err := cursor.All(ctx, &pnls); err != nil {
		return nil, fmt.Errorf("pnl window decode failed: %w", err)
	}
	return pnls, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) {
	if err := s.client.Disconnect(ctx); err != nil {
		log.Printf("[store] disconnect: %v", err)
	}
}
