package tradebuf

import (
	"testing"
	"time"

	"powerpnl/internal/models"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestBuffer(now time.Time) *Buffer {
	b := New(10*time.Second, time.Minute)
	b.now = func() time.Time { return now }
	return b
}

func trade(at time.Time, vol string) models.Trade {
	return models.Trade{Side: models.TradeBuy, Volume: vol, Time: at}
}

func TestQueryInclusiveBounds(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(base)
	b.Add(trade(base.Add(-3*time.Second), "1"))
	b.Add(trade(base.Add(-2*time.Second), "2"))
	b.Add(trade(base.Add(-1*time.Second), "3"))
	b.Add(trade(base, "4"))

	got := b.Query(base.Add(-2*time.Second), base.Add(-1*time.Second))
	if len(got) != 2 {
		t.Fatalf("Query returned %d trades, want 2 (both boundary trades included)", len(got))
	}
	if got[0].Volume != "2" || got[1].Volume != "3" {
		t.Fatalf("Query returned wrong trades: %+v", got)
	}

	if b.HasAny(base.Add(time.Second), base.Add(2*time.Second)) {
		t.Error("HasAny reported trades outside every timestamp")
	}
	if !b.HasAny(base, base) {
		t.Error("HasAny missed the boundary trade at exactly start==end")
	}
	if got := b.Query(base.Add(time.Hour), base.Add(2*time.Hour)); len(got) != 0 {
		t.Errorf("out-of-range query returned %d trades", len(got))
	}
}

func TestLastTradeTimeMonotonic(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(base)
	if _, ok := b.LastTradeTime(); ok {
		t.Fatal("empty buffer reported a last trade time")
	}

	b.Add(trade(base, "1"))
	b.Add(trade(base.Add(-5*time.Second), "2")) // out-of-order arrival
	last, ok := b.LastTradeTime()
	if !ok || !last.Equal(base) {
		t.Fatalf("LastTradeTime = %v, %v; want %v, true", last, ok, base)
	}

	b.Add(trade(base.Add(time.Second), "3"))
	last, _ = b.LastTradeTime()
	if !last.Equal(base.Add(time.Second)) {
		t.Fatalf("LastTradeTime did not advance: %v", last)
	}
}

func TestSweepCutoffBoundary(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(base)
	cutoff := base.Add(-10 * time.Second)
	b.Add(trade(cutoff.Add(-time.Second), "old"))
	b.Add(trade(cutoff, "at-cutoff"))
	b.Add(trade(base, "new"))

	if n := b.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	got := b.Query(cutoff.Add(-time.Minute), base)
	if len(got) != 2 {
		t.Fatalf("after sweep: %d trades, want 2", len(got))
	}
	if got[0].Volume != "at-cutoff" {
		t.Fatalf("trade at exactly the cutoff was swept: %+v", got)
	}
}

func TestSweepFrontTrimStopsAtFreshHead(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(base)
	// Fresh head followed by a stale straggler: front-trim must not
	// remove past the head.
	b.Add(trade(base, "fresh"))
	b.Add(trade(base.Add(-time.Hour), "stale-behind"))

	if n := b.Sweep(); n != 0 {
		t.Fatalf("Sweep removed %d, want 0", n)
	}
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
}

func TestQueriedRangeMerging(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(base)
	cutoff := base.Add(-time.Minute)

	b.UpdateQueriedRange(base.Add(-30*time.Second), base.Add(-20*time.Second))
	start, end, ok := b.QueriedRange()
	if !ok || !start.Equal(base.Add(-30*time.Second)) || !end.Equal(base.Add(-20*time.Second)) {
		t.Fatalf("initial range = [%v, %v] ok=%v", start, end, ok)
	}

	// End only grows.
	b.UpdateQueriedRange(base.Add(-25*time.Second), base.Add(-22*time.Second))
	_, end, _ = b.QueriedRange()
	if !end.Equal(base.Add(-20 * time.Second)) {
		t.Fatalf("end shrank to %v", end)
	}

	// Backward extension inside the retention window is allowed.
	b.UpdateQueriedRange(base.Add(-50*time.Second), base.Add(-10*time.Second))
	start, end, _ = b.QueriedRange()
	if !start.Equal(base.Add(-50*time.Second)) || !end.Equal(base.Add(-10*time.Second)) {
		t.Fatalf("range = [%v, %v]", start, end)
	}

	// Backward extension beyond the retention window is clamped out.
	b.UpdateQueriedRange(base.Add(-2*time.Hour), base.Add(-10*time.Second))
	start, _, _ = b.QueriedRange()
	if !start.Equal(base.Add(-50 * time.Second)) {
		t.Fatalf("start extended past retention to %v (cutoff %v)", start, cutoff)
	}
}

func TestQueriedRangeStartAdvancesWithClock(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(base)
	b.UpdateQueriedRange(base.Add(-50*time.Second), base)

	// 40 seconds later the old start is outside the retention window and
	// must advance forward to now-retention.
	later := base.Add(40 * time.Second)
	b.now = func() time.Time { return later }
	b.UpdateQueriedRange(base, base.Add(10*time.Second))

	start, _, _ := b.QueriedRange()
	if !start.Equal(later.Add(-time.Minute)) {
		t.Fatalf("start = %v, want %v", start, later.Add(-time.Minute))
	}
}

func TestLateArrivalDetection(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(base)
	var hooked []models.Trade
	b.OnLateArrival = func(tr models.Trade) { hooked = append(hooked, tr) }

	b.UpdateQueriedRange(base.Add(-30*time.Second), base.Add(-10*time.Second))

	b.Add(trade(base, "on-time"))
	if b.LateArrivals() != 0 {
		t.Fatal("trade after the queried range counted as late")
	}

	b.Add(trade(base.Add(-20*time.Second), "late"))
	if b.LateArrivals() != 1 {
		t.Fatalf("LateArrivals = %d, want 1", b.LateArrivals())
	}
	if len(hooked) != 1 || hooked[0].Volume != "late" {
		t.Fatalf("hook saw %+v", hooked)
	}

	// Boundary timestamps count as inside.
	b.Add(trade(base.Add(-10*time.Second), "late-at-end"))
	if b.LateArrivals() != 2 {
		t.Fatalf("LateArrivals = %d, want 2", b.LateArrivals())
	}
}
