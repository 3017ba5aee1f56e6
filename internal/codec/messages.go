// Package codec parses and validates the JSON messages carried on the
// 'trades' and 'market' topics. Invalid payloads are reported as errors so
// consumers can dead-letter them without touching the rest of the batch.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"powerpnl/internal/models"
)

// Message type discriminators carried in every payload.
const (
	TypeTrades = "trades"
	TypeMarket = "market"
)

type tradeMessage struct {
	MessageType string `json:"messageType"`
	TradeType   string `json:"tradeType"`
	Volume      string `json:"volume"`
	Time        string `json:"time"`
}

type marketMessage struct {
	MessageType string `json:"messageType"`
	BuyPrice    string `json:"buyPrice"`
	SellPrice   string `json:"sellPrice"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}

// ParseTrade decodes a 'trades' topic value and stamps it with the bus
// coordinates of the record it arrived on.
func ParseTrade(value []byte, partition int32, offset int64) (models.Trade, error) {
	var msg tradeMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return models.Trade{}, fmt.Errorf("invalid trade json: %w", err)
	}
	if msg.MessageType != TypeTrades {
		return models.Trade{}, fmt.Errorf("unexpected messageType %q", msg.MessageType)
	}
	if msg.TradeType != models.TradeBuy && msg.TradeType != models.TradeSell {
		return models.Trade{}, fmt.Errorf("unknown tradeType %q", msg.TradeType)
	}
	vol, err := decimal.NewFromString(msg.Volume)
	if err != nil {
		return models.Trade{}, fmt.Errorf("invalid volume %q: %w", msg.Volume, err)
	}
	if !vol.IsPositive() {
		return models.Trade{}, fmt.Errorf("volume must be > 0, got %q", msg.Volume)
	}
	ts, err := time.Parse(time.RFC3339, msg.Time)
	if err != nil {
		return models.Trade{}, fmt.Errorf("invalid time %q: %w", msg.Time, err)
	}

	return models.Trade{
		Side:      msg.TradeType,
		Volume:    msg.Volume,
		Time:      ts,
		Partition: partition,
		Offset:    offset,
	}, nil
}

// ParseMarket decodes a 'market' topic value and stamps it with the bus
// coordinates of the record it arrived on.
func ParseMarket(value []byte, partition int32, offset int64) (models.MarketInterval, error) {
	var msg marketMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return models.MarketInterval{}, fmt.Errorf("invalid market json: %w", err)
	}
	if msg.MessageType != TypeMarket {
		return models.MarketInterval{}, fmt.Errorf("unexpected messageType %q", msg.MessageType)
	}
	if _, err := decimal.NewFromString(msg.BuyPrice); err != nil {
		return models.MarketInterval{}, fmt.Errorf("invalid buyPrice %q: %w", msg.BuyPrice, err)
	}
	if _, err := decimal.NewFromString(msg.SellPrice); err != nil {
		return models.MarketInterval{}, fmt.Errorf("invalid sellPrice %q: %w", msg.SellPrice, err)
	}
	start, err := time.Parse(time.RFC3339, msg.StartTime)
	if err != nil {
		return models.MarketInterval{}, fmt.Errorf("invalid startTime %q: %w", msg.StartTime, err)
	}
	end, err := time.Parse(time.RFC3339, msg.EndTime)
	if err != nil {
		return models.MarketInterval{}, fmt.Errorf("invalid endTime %q: %w", msg.EndTime, err)
	}
	if !start.Before(end) {
		return models.MarketInterval{}, fmt.Errorf("startTime %s is not before endTime %s", msg.StartTime, msg.EndTime)
	}

	return models.MarketInterval{
		BuyPrice:  msg.BuyPrice,
		SellPrice: msg.SellPrice,
		StartTime: start,
		EndTime:   end,
		Partition: partition,
		Offset:    offset,
	}, nil
}
