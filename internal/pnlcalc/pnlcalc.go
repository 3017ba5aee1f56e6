// Package pnlcalc computes profit-and-loss for a market interval from the
// trades inside it. All arithmetic is arbitrary-precision decimal; binary
// floating point never touches a monetary value.
package pnlcalc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"powerpnl/internal/models"
)

// DefaultFee is the per-MWh trading fee applied to both sides.
const DefaultFee = "0.13"

// Calculator holds the configured fee.
type Calculator struct {
	fee decimal.Decimal
}

// New parses the fee string (TRADING_FEE_PER_MWH).
func New(fee string) (*Calculator, error) {
	f, err := decimal.NewFromString(fee)
	if err != nil {
		return nil, fmt.Errorf("invalid trading fee %q: %w", fee, err)
	}
	return &Calculator{fee: f}, nil
}

// Compute derives the PnL record for the interval:
//
//	totalBuyCost     = totalBuyVolume*buyPrice + totalBuyVolume*fee
//	totalSellRevenue = totalSellVolume*sellPrice - totalSellVolume*fee
//	totalFees        = (totalBuyVolume+totalSellVolume)*fee
//	pnl              = totalSellRevenue - totalBuyCost
//
// A trade with an unparseable volume or unknown side is an error; the
// consumers validate trades before buffering, so hitting one here means
// a caller bypassed the codec.
func (c *Calculator) Compute(m models.MarketInterval, trades []models.Trade) (models.PnL, error) {
	buyPrice, err := decimal.NewFromString(m.BuyPrice)
	if err != nil {
		return models.PnL{}, fmt.Errorf("invalid buyPrice %q: %w", m.BuyPrice, err)
	}
	sellPrice, err := decimal.NewFromString(m.SellPrice)
	if err != nil {
		return models.PnL{}, fmt.Errorf("invalid sellPrice %q: %w", m.SellPrice, err)
	}

	buyVolume := decimal.Zero
	sellVolume := decimal.Zero
	for _, t := range trades {
		vol, err := decimal.NewFromString(t.Volume)
		if err != nil {
			return models.PnL{}, fmt.Errorf("invalid trade volume %q at %d/%d: %w", t.Volume, t.Partition, t.Offset, err)
		}
		switch t.Side {
		case models.TradeBuy:
			buyVolume = buyVolume.Add(vol)
		case models.TradeSell:
			sellVolume = sellVolume.Add(vol)
		default:
			return models.PnL{}, fmt.Errorf("unknown trade side %q at %d/%d", t.Side, t.Partition, t.Offset)
		}
	}

	buyCost := buyVolume.Mul(buyPrice).Add(buyVolume.Mul(c.fee))
	sellRevenue := sellVolume.Mul(sellPrice).Sub(sellVolume.Mul(c.fee))
	totalFees := buyVolume.Add(sellVolume).Mul(c.fee)
	pnl := sellRevenue.Sub(buyCost)

	return models.PnL{
		MarketStartTime:  m.StartTime,
		MarketEndTime:    m.EndTime,
		BuyPrice:         m.BuyPrice,
		SellPrice:        m.SellPrice,
		TotalBuyVolume:   buyVolume.String(),
		TotalSellVolume:  sellVolume.String(),
		TotalBuyCost:     buyCost.String(),
		TotalSellRevenue: sellRevenue.String(),
		TotalFees:        totalFees.String(),
		Pnl:              pnl.String(),
		CreatedAt:        time.Now().UTC(),
	}, nil
}
