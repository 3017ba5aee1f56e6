package tradesvc

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"powerpnl/internal/models"
)

// TradeHistory is the slice of the store the persistence server needs.
type TradeHistory interface {
	TradesInRange(ctx context.Context, start, end time.Time) ([]models.Trade, error)
}

// StoreServer serves GetTradesForPeriod straight from the trades
// collection. It backs the persistence service's gRPC endpoint.
type StoreServer struct {
	history TradeHistory
}

// NewStoreServer wraps the store.
func NewStoreServer(history TradeHistory) *StoreServer {
	return &StoreServer{history: history}
}

// GetTradesForPeriod implements TradesServer. Store failures map to
// codes.Internal per the service contract.
func (s *StoreServer) GetTradesForPeriod(ctx context.Context, req *GetTradesRequest) (*GetTradesResponse, error) {
	start, end, err := req.Period()
	if err != nil {
		return nil, invalidArgument(err)
	}

	trades, err := s.history.TradesInRange(ctx, start, end)
	if err != nil {
		log.Printf("[tradesvc] store range query failed: %v", err)
		return nil, status.Error(codes.Internal, "trade history query failed")
	}
	return &GetTradesResponse{Trades: ToWire(trades)}, nil
}

func invalidArgument(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}
