package recovery

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ndbkernel/ndbkernel/kernelerr"
	"github.com/ndbkernel/ndbkernel/reorder"
	"github.com/ndbkernel/ndbkernel/xlog"
)

// Applier replays xlog records against recovered table state,
// following the in-sequence / out-of-sequence action table of spec
// §4.6. "In sequence" means the reorderer delivered the record as the
// next expected op-seq for its table; "out of sequence" means
// sync_operations forced it through at end-of-log ahead of (or behind)
// records it would ordinarily wait for.
type Applier struct {
	tables       map[uint32]*TableState
	transactions map[uint64]*Transaction
	reorder      *reorder.Registry

	// indLogID/indLogOff is the checkpoint's ind_rec_log position (spec
	// §6): index work for a record is only redone once its log position
	// is at or past this point, since the checkpoint's index flush
	// already covers everything before it.
	indLogID  uint32
	indLogOff int64
	indSet    bool

	log *logrus.Entry
}

// NewApplier returns an Applier backed by reg for op-seq ordering.
func NewApplier(reg *reorder.Registry, log *logrus.Entry) *Applier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Applier{
		tables:       make(map[uint32]*TableState),
		transactions: make(map[uint64]*Transaction),
		reorder:      reg,
		log:          log,
	}
}

// SetIndexRedoPosition installs the checkpoint's ind_rec_log position
// (spec §6 ind_rec_log_id/ind_rec_log_off), gating which records get
// their index state redone during replay. Called once, before replay
// starts, from the position loaded out of the selected restart record.
func (a *Applier) SetIndexRedoPosition(pos xlog.Position) {
	a.indLogID = pos.LogID
	a.indLogOff = pos.Offset
	a.indSet = true
}

// shouldRedoIndex reports whether a record at pos is at or after the
// checkpoint's ind_rec_log position and therefore still needs its
// index bookkeeping replayed (spec §4.6 "Index application rule"). With
// no position set (no prior checkpoint), every record redoes its index
// work.
func (a *Applier) shouldRedoIndex(pos xlog.Position) bool {
	if !a.indSet {
		return true
	}
	if pos.LogID != a.indLogID {
		return pos.LogID > a.indLogID
	}
	return pos.Offset >= a.indLogOff
}

func (a *Applier) table(id uint32) *TableState {
	t, ok := a.tables[id]
	if !ok {
		t = NewTableState(id)
		a.tables[id] = t
	}
	return t
}

func (a *Applier) transaction(id uint64) *Transaction {
	tx, ok := a.transactions[id]
	if !ok {
		tx = &Transaction{XactID: id}
		a.transactions[id] = tx
	}
	return tx
}

// recordID extracts the record id a row/record-granularity xlog
// record addresses from its payload. The wire layout is a single
// big-endian uint32 at the front of Data; every *_FL/_BG variant
// shares it since they differ only in the bookkeeping the applier does
// around the same write.
func recordID(rec *xlog.Record) uint32 {
	if len(rec.Data) < 4 {
		return 0
	}
	return uint32(rec.Data[0])<<24 | uint32(rec.Data[1])<<16 | uint32(rec.Data[2])<<8 | uint32(rec.Data[3])
}

// Apply applies rec, read from log position pos, to recovered state.
// inSequence distinguishes the two columns of spec §4.6's action
// table.
func (a *Applier) Apply(rec *xlog.Record, inSequence bool, pos xlog.Position) error {
	switch rec.Type {
	case xlog.RecHeader, xlog.RecNoOp, xlog.RecEndOfLog:
		return nil

	case xlog.RecModified:
		// Marks a record dirty; carries no free-list mutation of its own.
		return nil

	case xlog.RecUpdate, xlog.RecInsert, xlog.RecDelete,
		xlog.RecUpdateFL, xlog.RecInsertFL, xlog.RecDeleteFL,
		xlog.RecUpdateBG, xlog.RecInsertBG, xlog.RecDeleteBG,
		xlog.RecUpdateFLBG, xlog.RecInsertFLBG, xlog.RecDeleteFLBG:
		return a.applyRecordOp(rec, inSequence, pos)

	case xlog.RecFreed:
		a.freeRecord(a.table(rec.TableID), recordID(rec), !inSequence)
		return nil

	case xlog.RecRemoved, xlog.RecRemovedExt:
		// REC_REMOVED_EXT addresses an overflow extent; once the extent
		// is gone there is no way to tell whether it ever held an
		// overflow record or a plain one, so both variants free the
		// record and scrub it from the index identically.
		t := a.table(rec.TableID)
		id := recordID(rec)
		a.freeRecord(t, id, !inSequence)
		delete(t.RecordIndexed, id)
		return nil

	case xlog.RecRemovedBI:
		// Frees the record id the same way REC_FREED does; unlike
		// REC_REMOVED, its RecordIndexed entry is left as it is.
		a.freeRecord(a.table(rec.TableID), recordID(rec), !inSequence)
		return nil

	case xlog.RecMoved:
		return a.applyMoved(rec)

	case xlog.RecCleaned:
		// TableState holds no record bytes, so there is no header to
		// rewrite: REC_CLEANED changes no recovered state.
		return nil

	case xlog.RecCleaned1:
		// Same as REC_CLEANED: no recovered state changes, and the two
		// record types are not told apart here.
		return nil

	case xlog.RecUnlinked:
		t := a.table(rec.TableID)
		id := recordID(rec)
		for row, r := range t.RowToRecord {
			if r == id {
				delete(t.RowToRecord, row)
			}
		}
		return nil

	case xlog.RowNew, xlog.RowNewFL:
		t := a.table(rec.TableID)
		id := recordID(rec)
		switch {
		case inSequence:
			t.bumpRowEOF(id)
			if rec.Type == xlog.RowNewFL {
				t.popFreeRowFound(id)
			}
		case rec.Type == xlog.RowNewFL && t.popFreeRowFound(id):
			// Claimed a specific free row id out of sequence; EOF is
			// already past it from an earlier op.
		default:
			// Out of sequence and either not an FL variant or the id
			// was never on the free-row list: it must be a genuine
			// allocation this replay hasn't seen yet, so the rows
			// between the current EOF and id are threaded onto the
			// free list as synthetic freed rows (spec §4.6).
			t.threadRowGap(id)
		}
		return nil

	case xlog.RowAddRec:
		t := a.table(rec.TableID)
		if len(rec.Data) < 8 {
			return kernelerr.Structural(fmt.Errorf("payload len %d", len(rec.Data)), "recovery: short ROW_ADD_REC payload")
		}
		row := recordID(rec)
		recID := uint32(rec.Data[4])<<24 | uint32(rec.Data[5])<<16 | uint32(rec.Data[6])<<8 | uint32(rec.Data[7])
		t.RowToRecord[row] = recID
		return nil

	case xlog.RowSet:
		t := a.table(rec.TableID)
		if len(rec.Data) < 8 {
			return kernelerr.Structural(fmt.Errorf("payload len %d", len(rec.Data)), "recovery: short ROW_SET payload")
		}
		row := recordID(rec)
		recID := uint32(rec.Data[4])<<24 | uint32(rec.Data[5])<<16 | uint32(rec.Data[6])<<8 | uint32(rec.Data[7])
		t.RowToRecord[row] = recID
		return nil

	case xlog.RowFreed:
		t := a.table(rec.TableID)
		row := recordID(rec)
		t.pushFreeRow(row)
		delete(t.RowToRecord, row)
		return nil

	case xlog.OpSync:
		// Fences every table's reorder queue at this point even though
		// the log has not ended: whatever is queued behind a gap on any
		// table applies out of sequence now rather than waiting for
		// end-of-log.
		for _, tbl := range a.reorder.All() {
			for _, queued := range tbl.SyncOperations() {
				if err := a.Apply(queued.Rec, false, queued.Pos); err != nil {
					return err
				}
			}
		}
		return nil

	case xlog.NewLog, xlog.DelLog:
		// Log-file lifecycle; retention bookkeeping lives in the
		// checkpoint/recovery driver, not per-table state.
		return nil

	case xlog.NewTab:
		a.table(rec.TableID)
		return nil

	case xlog.Commit:
		a.transaction(rec.XactID).setFlag(xlog.BGEnded)
		return nil

	case xlog.Abort:
		a.transaction(rec.XactID).setFlag(xlog.BGEnded)
		return nil

	case xlog.Cleanup:
		delete(a.transactions, rec.XactID)
		return nil

	default:
		return kernelerr.Structural(fmt.Errorf("type %d", rec.Type), "recovery: unknown record type")
	}
}

func (a *Applier) applyRecordOp(rec *xlog.Record, inSequence bool, pos xlog.Position) error {
	t := a.table(rec.TableID)
	id := recordID(rec)

	_, known := a.transactions[rec.XactID]
	tx := a.transaction(rec.XactID)
	if rec.Type.IsBackground() && !known {
		// Unknown transaction seen only through a _BG record: materialize
		// it fully resolved, since a _BG variant means the transaction's
		// outcome was already settled elsewhere in the log (spec §4.6).
		tx.setFlag(xlog.BGLogged | xlog.BGEnded | xlog.BGRecovered | xlog.BGSweep)
		tx.BeginPos = pos
		tx.hasBegin = true
	} else if !known {
		tx.setFlag(xlog.BGLogged)
		tx.BeginPos = pos
		tx.hasBegin = true
	}

	switch {
	case inSequence:
		t.bumpRecEOF(id)
		if rec.Type.IsFreeList() {
			t.popFreeRecFound(id)
		}
	case rec.Type.IsFreeList() && t.popFreeRecFound(id):
		// Claimed a specific free record id out of sequence.
	default:
		// Out of sequence and either not an FL variant or id was never
		// on the free list: a genuine allocation beyond what this
		// replay has seen, so everything between the current EOF and
		// id threads onto the free list as synthetic freed records
		// (spec §4.6 worked example).
		t.threadRecGap(id)
	}

	if a.shouldRedoIndex(pos) {
		t.RecordIndexed[id] = true
	}
	return nil
}

// freeRecord frees id in table t, the shared behavior behind
// REC_FREED/REC_REMOVED/REC_REMOVED_EXT/REC_REMOVED_BI (spec §4.6).
// Out of sequence, the row list is scanned first and id spliced out of
// it before the id is pushed onto the free-record list, since replay
// cannot otherwise tell whether a row still points at a record it
// never saw allocated.
func (a *Applier) freeRecord(t *TableState, id uint32, outOfSequence bool) {
	if outOfSequence {
		for row, r := range t.RowToRecord {
			if r == id {
				delete(t.RowToRecord, row)
			}
		}
	}
	t.pushFreeRec(id)
}

func (a *Applier) applyMoved(rec *xlog.Record) error {
	if len(rec.Data) < 8 {
		return kernelerr.Structural(fmt.Errorf("payload len %d", len(rec.Data)), "recovery: short REC_MOVED payload")
	}
	t := a.table(rec.TableID)
	oldID := recordID(rec)
	newID := uint32(rec.Data[4])<<24 | uint32(rec.Data[5])<<16 | uint32(rec.Data[6])<<8 | uint32(rec.Data[7])
	for row, r := range t.RowToRecord {
		if r == oldID {
			t.RowToRecord[row] = newID
		}
	}
	t.bumpRecEOF(newID)
	delete(t.RecordIndexed, oldID)
	t.RecordIndexed[newID] = true
	return nil
}

// Table exposes the recovered state for tableID, for tests and for
// the table open-pool to adopt after recovery completes.
func (a *Applier) Table(tableID uint32) *TableState {
	return a.table(tableID)
}

// SweptTransactions returns every transaction the applier had to
// materialize from a _BG record without ever seeing its BEGIN (spec
// §4.6), for the recovery driver's end-of-restart summary.
func (a *Applier) SweptTransactions() []*Transaction {
	var out []*Transaction
	for _, tx := range a.transactions {
		if tx.hasFlag(xlog.BGSweep) {
			out = append(out, tx)
		}
	}
	return out
}

// LiveBeginPositions returns the begin-log position of every
// transaction still tracked (logged, not yet cleaned up) once replay
// reaches end-of-log — the recovery-time seed for the checkpointer's
// live-transaction retraction input (spec §4.7 step 1).
func (a *Applier) LiveBeginPositions() []xlog.Position {
	var out []xlog.Position
	for _, tx := range a.transactions {
		if tx.hasBegin {
			out = append(out, tx.BeginPos)
		}
	}
	return out
}
