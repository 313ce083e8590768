// Package reorder implements the per-table operation reorderer (spec
// §4.6): xlog records for one table arrive in file order, which is not
// necessarily op-seq order once multiple writers interleave, so each
// table's queue is kept sorted by op-seq and drained only as the next
// expected op-seq becomes available — except at end-of-log, when
// sync_operations forces whatever remains to apply out of sequence.
package reorder

import (
	"fmt"
	"sort"

	"github.com/ndbkernel/ndbkernel/xlog"
)

// maxQueueDepth bounds how many records one table's reorder queue may
// hold waiting on a gap before Push treats it as a runtime bug rather
// than an ordinary replay stall (spec §4.5).
const maxQueueDepth = 1 << 16

// seqLess compares two op-seq values under wrap-safe modular
// arithmetic: a precedes b if the signed difference (a-b), computed in
// 32-bit two's complement, is negative. This keeps comparisons correct
// across a wraparound so long as no more than 2^31 operations are ever
// in flight for one table at once (spec §4.1 "op-seq").
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}

// Entry holds one not-yet-applied record together with the log
// position it was read from: the applier needs the position to decide
// the index-redo rule (spec §4.6), not just the record itself.
type Entry struct {
	Rec *xlog.Record
	Pos xlog.Position
}

// Table reorders one table's stream of records into op-seq order.
type Table struct {
	tableID  uint32
	next     uint32
	haveNext bool
	queue    []Entry
}

// NewTable returns a reorderer for tableID with no expected op-seq yet;
// the first DrainInSequence call that finds records queued establishes
// it from the lowest queued op-seq.
func NewTable(tableID uint32) *Table {
	return &Table{tableID: tableID}
}

// Push inserts rec (read at pos) into the table's queue, keeping it
// sorted by op-seq. It panics if the queue would grow past
// maxQueueDepth: a gap that never closes across that many operations
// is a runtime bug, not a recoverable condition (spec §4.5).
func (t *Table) Push(rec *xlog.Record, pos xlog.Position) {
	if len(t.queue) >= maxQueueDepth {
		panic(fmt.Sprintf("reorder: table %d queue exceeded %d pending operations", t.tableID, maxQueueDepth))
	}
	i := sort.Search(len(t.queue), func(i int) bool {
		return !seqLess(t.queue[i].Rec.OpSeq, rec.OpSeq)
	})
	t.queue = append(t.queue, Entry{})
	copy(t.queue[i+1:], t.queue[i:])
	t.queue[i] = Entry{Rec: rec, Pos: pos}
}

// DrainInSequence removes and returns every queued record, in order,
// up to and including the first gap: once t.next is not present in the
// queue, draining stops and whatever remains stays queued waiting for
// the missing op-seq to arrive.
func (t *Table) DrainInSequence() []Entry {
	if !t.haveNext && len(t.queue) > 0 {
		t.next = t.queue[0].Rec.OpSeq
		t.haveNext = true
	}
	var out []Entry
	for len(t.queue) > 0 && t.queue[0].Rec.OpSeq == t.next {
		out = append(out, t.queue[0])
		t.queue = t.queue[1:]
		t.next++
	}
	return out
}

// SyncOperations forces every record still queued to apply regardless
// of gaps, in queue (op-seq) order, under the recovery applier's
// out-of-sequence rules (spec §4.6: "sync_operations forces
// out-of-sequence application at end-of-log"). It is only correct to
// call this once the log has been fully scanned.
func (t *Table) SyncOperations() []Entry {
	out := make([]Entry, len(t.queue))
	copy(out, t.queue)
	t.queue = nil
	return out
}

// Pending reports how many records are queued waiting on a gap.
func (t *Table) Pending() int { return len(t.queue) }

// HeadPosition reports the log position of the oldest record still
// queued behind a gap, for the checkpointer's per-table queued-op
// retraction input (spec §4.7 step 1). The second return is false when
// nothing is queued.
func (t *Table) HeadPosition() (xlog.Position, bool) {
	if len(t.queue) == 0 {
		return xlog.Position{}, false
	}
	return t.queue[0].Pos, true
}

// Registry tracks one reorder.Table per table id, created lazily.
type Registry struct {
	tables map[uint32]*Table
}

// NewRegistry returns an empty table registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[uint32]*Table)}
}

// Table returns (creating if needed) the reorderer for tableID.
func (r *Registry) Table(tableID uint32) *Table {
	t, ok := r.tables[tableID]
	if !ok {
		t = NewTable(tableID)
		r.tables[tableID] = t
	}
	return t
}

// QueuedHeadPositions returns the head-queued-op position of every
// table that currently has one, for the checkpointer's retraction
// input (spec §4.7 step 1).
func (r *Registry) QueuedHeadPositions() []xlog.Position {
	var out []xlog.Position
	for _, t := range r.tables {
		if pos, ok := t.HeadPosition(); ok {
			out = append(out, pos)
		}
	}
	return out
}

// All returns every table reorderer currently tracked, for
// SyncOperations at end-of-log.
func (r *Registry) All() map[uint32]*Table {
	return r.tables
}
