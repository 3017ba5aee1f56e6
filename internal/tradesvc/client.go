package tradesvc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"powerpnl/internal/models"
)

// Client is a thin TradesService client. Every call carries a hard
// deadline; retry policy belongs to the caller.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewClient prepares a connection to addr. The underlying connection is
// lazy; gRPC reconnects on its own, so there is no connect-time retry
// loop here.
func NewClient(addr string, timeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trades client for %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// GetTradesForPeriod fetches all trades with start <= time <= end.
func (c *Client) GetTradesForPeriod(ctx context.Context, start, end time.Time) ([]models.Trade, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(GetTradesResponse)
	if err := c.conn.Invoke(callCtx, methodGetTradesForPeriod, NewRequest(start, end), resp); err != nil {
		return nil, fmt.Errorf("GetTradesForPeriod failed: %w", err)
	}
	return FromWire(resp.Trades)
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
