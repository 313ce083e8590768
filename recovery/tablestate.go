// Package recovery implements crash-recovery replay: the in-sequence
// and out-of-sequence application rules for every xlog record type
// (spec §4.6), grounded on the XT_LOG_ENT_* switch in
// storage/pbxt/src/restart_xt.cc.
package recovery

import "github.com/ndbkernel/ndbkernel/xlog"

// TableState is the recovered in-memory shape of one table's record
// and row free-space bookkeeping, rebuilt by replaying its records.
type TableState struct {
	TableID uint32

	// HeadRecEOF is one past the highest record id ever written to this
	// table (the record file's logical end).
	HeadRecEOF uint32
	// FreeRecHead is the head of the singly-linked free-record list, 0
	// meaning empty. Record ids double as list links: a free record's
	// payload holds the next free id.
	FreeRecHead uint32
	FreeRecLink map[uint32]uint32

	// HeadRowEOF and FreeRowHead mirror the above at row granularity.
	HeadRowEOF  uint32
	FreeRowHead uint32
	FreeRowLink map[uint32]uint32

	// RowToRecord is the current record id a row points at.
	RowToRecord map[uint32]uint32
	// RecordIndexed tracks whether a record id is still reachable from
	// an index, for RecRemoved's "free + index cleanup" step.
	RecordIndexed map[uint32]bool

	RecoveryDone bool
}

// NewTableState returns a zeroed table state ready to replay from the
// beginning of the log.
func NewTableState(tableID uint32) *TableState {
	return &TableState{
		TableID:       tableID,
		FreeRecLink:   make(map[uint32]uint32),
		FreeRowLink:   make(map[uint32]uint32),
		RowToRecord:   make(map[uint32]uint32),
		RecordIndexed: make(map[uint32]bool),
	}
}

func (t *TableState) bumpRecEOF(id uint32) {
	if id >= t.HeadRecEOF {
		t.HeadRecEOF = id + 1
	}
}

func (t *TableState) bumpRowEOF(id uint32) {
	if id >= t.HeadRowEOF {
		t.HeadRowEOF = id + 1
	}
}

func (t *TableState) pushFreeRec(id uint32) {
	t.FreeRecLink[id] = t.FreeRecHead
	t.FreeRecHead = id
}

// popFreeRecFound splices id out of the free-record list wherever it
// sits, used by the *_FL record variants to re-claim a specific id
// rather than whatever is at the list head. It reports whether id was
// actually on the list: an *_FL record applied out of sequence for an
// id the free list never saw falls back to the EOF-allocation rule
// (spec §4.6's worked example: "rec=42 is removed from the free list
// if present; else head_rec_eof jumps to 43").
func (t *TableState) popFreeRecFound(id uint32) bool {
	if t.FreeRecHead == id {
		t.FreeRecHead = t.FreeRecLink[id]
		delete(t.FreeRecLink, id)
		return true
	}
	prev := t.FreeRecHead
	for prev != 0 {
		next := t.FreeRecLink[prev]
		if next == id {
			t.FreeRecLink[prev] = t.FreeRecLink[id]
			delete(t.FreeRecLink, id)
			return true
		}
		prev = next
	}
	return false
}

// threadRecGap threads every record id in [HeadRecEOF, id) onto the
// free list as synthetic freed records, then advances HeadRecEOF past
// id. Used when an out-of-sequence alloc-via-EOF record lands ahead of
// HeadRecEOF: replay never saw the intervening ids allocated, so they
// are presumed free (spec §4.6 out-of-sequence rule for UPDATE/INSERT/
// DELETE and ROW_NEW).
func (t *TableState) threadRecGap(id uint32) {
	for gap := t.HeadRecEOF; gap < id; gap++ {
		t.pushFreeRec(gap)
	}
	t.bumpRecEOF(id)
}

func (t *TableState) pushFreeRow(id uint32) {
	t.FreeRowLink[id] = t.FreeRowHead
	t.FreeRowHead = id
}

// popFreeRowFound mirrors popFreeRecFound at row granularity.
func (t *TableState) popFreeRowFound(id uint32) bool {
	if t.FreeRowHead == id {
		t.FreeRowHead = t.FreeRowLink[id]
		delete(t.FreeRowLink, id)
		return true
	}
	prev := t.FreeRowHead
	for prev != 0 {
		next := t.FreeRowLink[prev]
		if next == id {
			t.FreeRowLink[prev] = t.FreeRowLink[id]
			delete(t.FreeRowLink, id)
			return true
		}
		prev = next
	}
	return false
}

// threadRowGap mirrors threadRecGap at row granularity.
func (t *TableState) threadRowGap(id uint32) {
	for gap := t.HeadRowEOF; gap < id; gap++ {
		t.pushFreeRow(gap)
	}
	t.bumpRowEOF(id)
}

// Transaction is a recovered transaction's state, including ones the
// applier only ever learns about from a _BG record (spec §4.6: "*_BG
// variants materialize unknown transactions").
type Transaction struct {
	XactID uint64
	Flags  xlog.BGFlag

	// BeginPos is the log position of the first record this applier
	// saw for XactID, standing in for the transaction's BEGIN position
	// once recovery has handed off to live running (spec §4.7 step 1:
	// checkpoint retraction needs every live transaction's begin
	// position).
	BeginPos xlog.Position
	hasBegin bool
}

func (tx *Transaction) hasFlag(f xlog.BGFlag) bool { return tx.Flags&f != 0 }
func (tx *Transaction) setFlag(f xlog.BGFlag)       { tx.Flags |= f }
