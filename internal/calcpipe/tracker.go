// Package calcpipe implements the calculation pipeline: concurrent
// per-interval processing of market messages with strictly in-order
// per-partition offset commits.
package calcpipe

import (
	"context"
	"log"
	"sync"

	"powerpnl/internal/bus"
)

// Committer acknowledges offsets to the bus.
type Committer interface {
	CommitRecords(ctx context.Context, records ...bus.Record) error
}

// partitionState tracks the commit frontier of one partition. Offsets
// move inFlight -> completed -> committed; a processing failure removes
// the offset from both sets so redelivery picks it up again.
type partitionState struct {
	inFlight  map[int64]struct{}
	completed map[int64]bus.Record

	// firstSeen is the lowest offset ever delivered on the partition.
	// Until something has been committed it anchors the frontier, so a
	// high offset finishing early can never be committed past a lower
	// one that is still in flight or has failed.
	firstSeen int64
	hasSeen   bool

	lastCommit   int64
	hasCommitted bool

	// committing serializes the commit RPC per partition; the tracker
	// mutex is released while the RPC is on the wire.
	committing bool
}

// Tracker owns the per-partition state. Many processing goroutines
// complete concurrently; the mutex serializes frontier bookkeeping and
// the bus only ever sees ascending offsets per partition.
type Tracker struct {
	committer Committer

	mu         sync.Mutex
	partitions map[int32]*partitionState
}

// NewTracker wires the commit sink.
func NewTracker(committer Committer) *Tracker {
	return &Tracker{
		committer:  committer,
		partitions: make(map[int32]*partitionState),
	}
}

func (t *Tracker) partition(p int32) *partitionState {
	ps, ok := t.partitions[p]
	if !ok {
		ps = &partitionState{
			inFlight:  make(map[int64]struct{}),
			completed: make(map[int64]bus.Record),
		}
		t.partitions[p] = ps
	}
	return ps
}

// Begin registers an offset as in flight. It returns false for a
// duplicate delivery of an offset that is currently in flight or
// awaiting commit; such deliveries are skipped. Begin never blocks on
// the bus.
func (t *Tracker) Begin(rec bus.Record) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.partition(rec.Partition)
	if _, ok := ps.inFlight[rec.Offset]; ok {
		return false
	}
	if _, ok := ps.completed[rec.Offset]; ok {
		return false
	}
	if !ps.hasSeen || rec.Offset < ps.firstSeen {
		ps.firstSeen = rec.Offset
		ps.hasSeen = true
	}
	ps.inFlight[rec.Offset] = struct{}{}
	return true
}

// Fail drops a failed offset from tracking entirely; the message returns
// via redelivery after a rebalance or restart. The frontier stays below
// the failed offset, so nothing above it can be committed meanwhile.
func (t *Tracker) Fail(rec bus.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.partition(rec.Partition).inFlight, rec.Offset)
}

// Complete moves the offset to completed and advances the partition's
// commit frontier as far as the completed prefix allows. A commit
// failure stops the advance; the next completion retries it.
func (t *Tracker) Complete(ctx context.Context, rec bus.Record) {
	t.mu.Lock()
	ps := t.partition(rec.Partition)
	delete(ps.inFlight, rec.Offset)
	ps.completed[rec.Offset] = rec
	t.mu.Unlock()

	t.advance(ctx, rec.Partition)
}

// advance commits consecutive completed offsets starting at the
// partition's frontier. The commit RPC runs outside the mutex so other
// deliveries keep registering while it is on the wire; the committing
// flag keeps one RPC in flight per partition, and the loop picks up
// completions that landed during it.
func (t *Tracker) advance(ctx context.Context, partition int32) {
	for {
		t.mu.Lock()
		ps := t.partition(partition)
		if ps.committing {
			t.mu.Unlock()
			return
		}

		next := ps.firstSeen
		if ps.hasCommitted {
			next = ps.lastCommit + 1
		}
		var batch []bus.Record
		for {
			rec, ok := ps.completed[next]
			if !ok {
				break
			}
			batch = append(batch, rec)
			next++
		}
		if len(batch) == 0 {
			t.mu.Unlock()
			return
		}
		ps.committing = true
		t.mu.Unlock()

		err := t.committer.CommitRecords(ctx, batch...)

		t.mu.Lock()
		ps.committing = false
		if err != nil {
			log.Printf("[commit] partition %d offset %d commit failed, will retry: %v", partition, batch[0].Offset, err)
			t.mu.Unlock()
			return
		}
		for _, r := range batch {
			delete(ps.completed, r.Offset)
		}
		last := batch[len(batch)-1].Offset
		if !ps.hasCommitted || last > ps.lastCommit {
			ps.lastCommit = last
			ps.hasCommitted = true
		}
		t.mu.Unlock()
	}
}

// PartitionStatus is a snapshot row for the status endpoint.
type PartitionStatus struct {
	Partition     int32 `json:"partition"`
	InFlight      int   `json:"inFlight"`
	AwaitingOrder int   `json:"awaitingOrder"`
	LastCommitted int64 `json:"lastCommitted"`
	HasCommitted  bool  `json:"hasCommitted"`
}

// Snapshot returns the current per-partition state.
func (t *Tracker) Snapshot() []PartitionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PartitionStatus, 0, len(t.partitions))
	for p, ps := range t.partitions {
		out = append(out, PartitionStatus{
			Partition:     p,
			InFlight:      len(ps.inFlight),
			AwaitingOrder: len(ps.completed),
			LastCommitted: ps.lastCommit,
			HasCommitted:  ps.hasCommitted,
		})
	}
	return out
}
