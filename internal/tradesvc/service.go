// Package tradesvc defines the TradesService gRPC contract shared by the
// memory and persistence services, plus the range-query router that
// fronts the in-memory buffer.
//
// The wire messages are the JSON shapes of the service contract, carried
// over gRPC with a JSON codec and a hand-written service descriptor; the
// repo vendors no generated protobuf code.
package tradesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"powerpnl/internal/models"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tradesservice.TradesService"

const methodGetTradesForPeriod = "/" + ServiceName + "/GetTradesForPeriod"

// codecName is the gRPC content-subtype under which the JSON codec is
// registered (content-type application/grpc+json).
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GetTradesRequest asks for all trades with startTime <= time <= endTime.
type GetTradesRequest struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// TradeMessage is one trade on the wire.
type TradeMessage struct {
	TradeType string `json:"tradeType"`
	Volume    string `json:"volume"`
	Time      string `json:"time"`
}

// GetTradesResponse carries the trades in time-ascending order.
type GetTradesResponse struct {
	Trades []TradeMessage `json:"trades"`
}

// Period returns the parsed request bounds.
func (r *GetTradesRequest) Period() (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return start, end, fmt.Errorf("invalid startTime %q: %w", r.StartTime, err)
	}
	end, err = time.Parse(time.RFC3339, r.EndTime)
	if err != nil {
		return start, end, fmt.Errorf("invalid endTime %q: %w", r.EndTime, err)
	}
	return start, end, nil
}

// NewRequest builds a request for [start, end].
func NewRequest(start, end time.Time) *GetTradesRequest {
	return &GetTradesRequest{
		StartTime: start.Format(time.RFC3339),
		EndTime:   end.Format(time.RFC3339),
	}
}

// ToWire converts stored trades to the response shape.
func ToWire(trades []models.Trade) []TradeMessage {
	out := make([]TradeMessage, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeMessage{
			TradeType: t.Side,
			Volume:    t.Volume,
			Time:      t.Time.Format(time.RFC3339),
		})
	}
	return out
}

// FromWire converts response trades back into models. Unparseable
// entries are rejected; the server always emits RFC3339.
func FromWire(msgs []TradeMessage) ([]models.Trade, error) {
	out := make([]models.Trade, 0, len(msgs))
	for _, m := range msgs {
		ts, err := time.Parse(time.RFC3339, m.Time)
		if err != nil {
			return nil, fmt.Errorf("invalid trade time %q: %w", m.Time, err)
		}
		out = append(out, models.Trade{Side: m.TradeType, Volume: m.Volume, Time: ts})
	}
	return out, nil
}

// TradesServer is implemented by both the memory service (buffer + wait
// protocol) and the persistence service (store range query).
type TradesServer interface {
	GetTradesForPeriod(ctx context.Context, req *GetTradesRequest) (*GetTradesResponse, error)
}

// RegisterTradesServer attaches srv to the gRPC server under ServiceName.
func RegisterTradesServer(s *grpc.Server, srv TradesServer) {
	s.RegisterService(&tradesServiceDesc, srv)
}

func getTradesForPeriodHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetTradesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TradesServer).GetTradesForPeriod(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetTradesForPeriod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TradesServer).GetTradesForPeriod(ctx, req.(*GetTradesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var tradesServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TradesServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetTradesForPeriod",
			Handler:    getTradesForPeriodHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradesservice",
}
