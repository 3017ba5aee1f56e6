// Package pnlview produces the aggregated PnL summary served to
// downstream consumers: the latest interval plus rolling one and five
// minute windows anchored at the latest interval's end time.
package pnlview

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"powerpnl/internal/models"
)

const timeLayout = "2006-01-02 15:04"

// PnLReader is the slice of the store the summary reads from.
type PnLReader interface {
	LatestPnL(ctx context.Context) (*models.PnL, error)
	PnLsSince(ctx context.Context, since time.Time) ([]models.PnL, error)
}

// View answers summary queries.
type View struct {
	reader PnLReader
}

// NewView wires the PnL store.
func NewView(reader PnLReader) *View {
	return &View{reader: reader}
}

// Summary returns three windows: the latest interval, the last minute
// and the last five minutes, all relative to the latest record's
// marketEndTime. Sums are exact decimal; rounding to two places happens
// only here, on output. An empty collection yields an empty list.
func (v *View) Summary(ctx context.Context) ([]models.PnLWindow, error) {
	latest, err := v.reader.LatestPnL(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest pnl lookup failed: %w", err)
	}
	if latest == nil {
		return []models.PnLWindow{}, nil
	}

	reference := latest.MarketEndTime

	latestPnl, err := decimal.NewFromString(latest.Pnl)
	if err != nil {
		return nil, fmt.Errorf("stored pnl %q unparseable: %w", latest.Pnl, err)
	}

	minuteSum, minuteStart, err := v.windowSum(ctx, reference, time.Minute)
	if err != nil {
		return nil, err
	}
	fiveSum, fiveStart, err := v.windowSum(ctx, reference, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	return []models.PnLWindow{
		{
			StartTime: latest.MarketStartTime.Format(timeLayout),
			EndTime:   reference.Format(timeLayout),
			Pnl:       latestPnl.StringFixed(2),
		},
		{
			StartTime: minuteStart.Format(timeLayout),
			EndTime:   reference.Format(timeLayout),
			Pnl:       minuteSum.StringFixed(2),
		},
		{
			StartTime: fiveStart.Format(timeLayout),
			EndTime:   reference.Format(timeLayout),
			Pnl:       fiveSum.StringFixed(2),
		},
	}, nil
}

// windowSum adds up every record whose marketEndTime falls within span
// of the reference time.
func (v *View) windowSum(ctx context.Context, reference time.Time, span time.Duration) (decimal.Decimal, time.Time, error) {
	since := reference.Add(-span)
	records, err := v.reader.PnLsSince(ctx, since)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("pnl window query failed: %w", err)
	}
	sum := decimal.Zero
	for _, r := range records {
		p, err := decimal.NewFromString(r.Pnl)
		if err != nil {
			return decimal.Zero, time.Time{}, fmt.Errorf("stored pnl %q unparseable: %w", r.Pnl, err)
		}
		sum = sum.Add(p)
	}
	return sum, since, nil
}
