package models

import "time"

// Trade side constants as they appear on the wire.
const (
	TradeBuy  = "BUY"
	TradeSell = "SELL"
)

// Trade represents one trade event from the 'trades' topic. The pair
// (Partition, Offset) is globally unique per event and is the upsert key
// in the store. Volume stays a decimal string end-to-end to preserve
// precision.
type Trade struct {
	Side      string    `json:"tradeType" bson:"tradeType"`
	Volume    string    `json:"volume" bson:"volume"`
	Time      time.Time `json:"time" bson:"time"`
	Partition int32     `json:"partition" bson:"partition"`
	Offset    int64     `json:"offset" bson:"offset"`
}

// MarketInterval represents one market message: the buy/sell prices that
// apply to trades whose timestamps fall inside [StartTime, EndTime]
// (inclusive on both ends). (StartTime, EndTime) is unique in the store.
type MarketInterval struct {
	BuyPrice  string    `json:"buyPrice" bson:"buyPrice"`
	SellPrice string    `json:"sellPrice" bson:"sellPrice"`
	StartTime time.Time `json:"startTime" bson:"startTime"`
	EndTime   time.Time `json:"endTime" bson:"endTime"`
	Partition int32     `json:"partition" bson:"partition"`
	Offset    int64     `json:"offset" bson:"offset"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// PnL is the profit-and-loss record derived from one market interval and
// the trades inside it. All derived fields are decimal strings; nothing
// is rounded until the aggregated query formats its output.
//
// Invariant: Pnl = TotalSellRevenue - TotalBuyCost.
type PnL struct {
	MarketStartTime  time.Time `json:"marketStartTime" bson:"marketStartTime"`
	MarketEndTime    time.Time `json:"marketEndTime" bson:"marketEndTime"`
	BuyPrice         string    `json:"buyPrice" bson:"buyPrice"`
	SellPrice        string    `json:"sellPrice" bson:"sellPrice"`
	TotalBuyVolume   string    `json:"totalBuyVolume" bson:"totalBuyVolume"`
	TotalSellVolume  string    `json:"totalSellVolume" bson:"totalSellVolume"`
	TotalBuyCost     string    `json:"totalBuyCost" bson:"totalBuyCost"`
	TotalSellRevenue string    `json:"totalSellRevenue" bson:"totalSellRevenue"`
	TotalFees        string    `json:"totalFees" bson:"totalFees"`
	Pnl              string    `json:"pnl" bson:"pnl"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
}

// PnLWindow is one row of the aggregated PnL view: the latest interval,
// the last minute, or the last five minutes. Times are human-formatted
// ("2006-01-02 15:04") and Pnl is rounded to two decimal places.
type PnLWindow struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Pnl       string `json:"pnl"`
}
