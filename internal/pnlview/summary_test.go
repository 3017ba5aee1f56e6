package pnlview

import (
	"context"
	"errors"
	"testing"
	"time"

	"powerpnl/internal/models"
)

type fakeReader struct {
	records []models.PnL // newest first
	err     error
}

func (r *fakeReader) LatestPnL(ctx context.Context) (*models.PnL, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(r.records) == 0 {
		return nil, nil
	}
	latest := r.records[0]
	return &latest, nil
}

func (r *fakeReader) PnLsSince(ctx context.Context, since time.Time) ([]models.PnL, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []models.PnL
	for _, rec := range r.records {
		if !rec.MarketEndTime.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func pnlAt(t *testing.T, end string, pnl string) models.PnL {
	t.Helper()
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		t.Fatal(err)
	}
	return models.PnL{
		MarketStartTime: e.Add(-time.Minute),
		MarketEndTime:   e,
		Pnl:             pnl,
	}
}

func TestSummaryThreeWindows(t *testing.T) {
	t.Parallel()

	// Latest ends 12:10; one record inside the minute window, two more
	// inside the five minute window, one older than both.
	reader := &fakeReader{records: []models.PnL{
		pnlAt(t, "2024-03-01T12:10:00Z", "10.005"),
		pnlAt(t, "2024-03-01T12:09:30Z", "-2.5"),
		pnlAt(t, "2024-03-01T12:07:00Z", "4"),
		pnlAt(t, "2024-03-01T12:06:00Z", "1"),
		pnlAt(t, "2024-03-01T12:00:00Z", "100"),
	}}

	got, err := NewView(reader).Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d windows, want 3", len(got))
	}

	want := []models.PnLWindow{
		{StartTime: "2024-03-01 12:09", EndTime: "2024-03-01 12:10", Pnl: "10.01"},
		{StartTime: "2024-03-01 12:09", EndTime: "2024-03-01 12:10", Pnl: "7.51"},
		{StartTime: "2024-03-01 12:05", EndTime: "2024-03-01 12:10", Pnl: "12.51"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSummaryEmptyCollection(t *testing.T) {
	t.Parallel()

	got, err := NewView(&fakeReader{}).Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d windows for an empty collection, want 0", len(got))
	}
}

func TestSummaryPropagatesStoreError(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{err: errors.New("server selection timeout")}
	if _, err := NewView(reader).Summary(context.Background()); err == nil {
		t.Fatal("store error swallowed")
	}
}

// Boundary record exactly at reference - 60s belongs to the window.
func TestSummaryWindowBoundaryInclusive(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{records: []models.PnL{
		pnlAt(t, "2024-03-01T12:10:00Z", "1"),
		pnlAt(t, "2024-03-01T12:09:00Z", "2"),
	}}

	got, err := NewView(reader).Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got[1].Pnl != "3.00" {
		t.Fatalf("minute window pnl = %s, want 3.00 (boundary included)", got[1].Pnl)
	}
}
