package pnlcalc

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"powerpnl/internal/models"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestComputeScenarios(t *testing.T) {
	t.Parallel()

	start := "2024-03-01T10:00:00Z"
	end := "2024-03-01T10:01:00Z"

	cases := []struct {
		name        string
		market      models.MarketInterval
		trades      []models.Trade
		wantBuyCost string
		wantRevenue string
		wantFees    string
		wantPnl     string
	}{
		{
			// BUY 100 @ 50 and SELL 50 @ 55 with fee 0.13:
			// cost = 100*50 + 100*0.13 = 5013
			// revenue = 50*55 - 50*0.13 = 2743.5
			name:   "buy and sell",
			market: models.MarketInterval{BuyPrice: "50", SellPrice: "55"},
			trades: []models.Trade{
				{Side: models.TradeBuy, Volume: "100"},
				{Side: models.TradeSell, Volume: "50"},
			},
			wantBuyCost: "5013",
			wantRevenue: "2743.5",
			wantFees:    "19.5",
			wantPnl:     "-2269.5",
		},
		{
			name:        "no trades",
			market:      models.MarketInterval{BuyPrice: "50", SellPrice: "55"},
			trades:      nil,
			wantBuyCost: "0",
			wantRevenue: "0",
			wantFees:    "0",
			wantPnl:     "0",
		},
		{
			name:   "fractional volumes keep precision",
			market: models.MarketInterval{BuyPrice: "42.7", SellPrice: "43.1"},
			trades: []models.Trade{
				{Side: models.TradeBuy, Volume: "0.1"},
				{Side: models.TradeBuy, Volume: "0.2"},
				{Side: models.TradeSell, Volume: "0.3"},
			},
			// cost = 0.3*42.7 + 0.3*0.13 = 12.849
			// revenue = 0.3*43.1 - 0.3*0.13 = 12.891
			wantBuyCost: "12.849",
			wantRevenue: "12.891",
			wantFees:    "0.078",
			wantPnl:     "0.042",
		},
	}

	calc, err := New(DefaultFee)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.market.StartTime = mustTime(t, start)
			tc.market.EndTime = mustTime(t, end)

			got, err := calc.Compute(tc.market, tc.trades)
			if err != nil {
				t.Fatal(err)
			}

			checks := []struct {
				field string
				got   string
				want  string
			}{
				{"totalBuyCost", got.TotalBuyCost, tc.wantBuyCost},
				{"totalSellRevenue", got.TotalSellRevenue, tc.wantRevenue},
				{"totalFees", got.TotalFees, tc.wantFees},
				{"pnl", got.Pnl, tc.wantPnl},
			}
			for _, ch := range checks {
				g := decimal.RequireFromString(ch.got)
				w := decimal.RequireFromString(ch.want)
				if !g.Equal(w) {
					t.Errorf("%s = %s, want %s", ch.field, ch.got, ch.want)
				}
			}

			if !got.MarketStartTime.Equal(tc.market.StartTime) || !got.MarketEndTime.Equal(tc.market.EndTime) {
				t.Errorf("interval times not carried over: %+v", got)
			}
		})
	}
}

// pnl must always equal revenue minus cost, unrounded.
func TestComputePnlIdentity(t *testing.T) {
	t.Parallel()

	calc, err := New("0.07")
	if err != nil {
		t.Fatal(err)
	}
	m := models.MarketInterval{
		BuyPrice:  "49.999",
		SellPrice: "50.001",
		StartTime: mustTime(t, "2024-03-01T10:00:00Z"),
		EndTime:   mustTime(t, "2024-03-01T10:01:00Z"),
	}
	trades := []models.Trade{
		{Side: models.TradeBuy, Volume: "3.333"},
		{Side: models.TradeSell, Volume: "7.777"},
		{Side: models.TradeBuy, Volume: "0.001"},
	}

	got, err := calc.Compute(m, trades)
	if err != nil {
		t.Fatal(err)
	}

	revenue := decimal.RequireFromString(got.TotalSellRevenue)
	cost := decimal.RequireFromString(got.TotalBuyCost)
	pnl := decimal.RequireFromString(got.Pnl)
	if !pnl.Equal(revenue.Sub(cost)) {
		t.Fatalf("pnl %s != revenue %s - cost %s", pnl, revenue, cost)
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	t.Parallel()

	calc, _ := New(DefaultFee)
	m := models.MarketInterval{BuyPrice: "50", SellPrice: "55"}

	if _, err := calc.Compute(m, []models.Trade{{Side: "HOLD", Volume: "1"}}); err == nil {
		t.Error("expected error for unknown side")
	}
	if _, err := calc.Compute(m, []models.Trade{{Side: models.TradeBuy, Volume: "x"}}); err == nil {
		t.Error("expected error for bad volume")
	}
	if _, err := calc.Compute(models.MarketInterval{BuyPrice: "?", SellPrice: "55"}, nil); err == nil {
		t.Error("expected error for bad buyPrice")
	}
	if _, err := New("cheap"); err == nil {
		t.Error("expected error for bad fee")
	}
}
