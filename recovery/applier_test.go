package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndbkernel/ndbkernel/reorder"
	"github.com/ndbkernel/ndbkernel/xlog"
)

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func newApplier() *Applier {
	return NewApplier(reorder.NewRegistry(), nil)
}

func TestApplyInsertBumpsRecordEOF(t *testing.T) {
	a := newApplier()
	rec := &xlog.Record{Type: xlog.RecInsert, TableID: 1, Data: be32(5)}
	require.NoError(t, a.Apply(rec, true, xlog.Position{}))

	st := a.Table(1)
	assert.Equal(t, uint32(6), st.HeadRecEOF)
	assert.True(t, st.RecordIndexed[5])
}

// TestApplyOutOfSequenceThreadsGapOntoFreeList covers spec §4.6's
// worked example: an alloc-via-EOF record applied out of sequence
// ahead of what replay has seen must thread every id between the
// current EOF and the new one onto the free list as synthetic freed
// records, then advance EOF past it.
func TestApplyOutOfSequenceThreadsGapOntoFreeList(t *testing.T) {
	a := newApplier()
	rec := &xlog.Record{Type: xlog.RecInsert, TableID: 1, Data: be32(5)}
	require.NoError(t, a.Apply(rec, false, xlog.Position{}))

	st := a.Table(1)
	assert.Equal(t, uint32(6), st.HeadRecEOF)
	assert.True(t, st.RecordIndexed[5])
	for id := uint32(0); id < 5; id++ {
		assert.True(t, st.popFreeRecFound(id), "expected id %d threaded onto free list", id)
	}
}

func TestApplyFreeListVariantPopsFreeList(t *testing.T) {
	a := newApplier()
	st := a.Table(1)
	st.FreeRecLink[3] = 0
	st.FreeRecHead = 3

	rec := &xlog.Record{Type: xlog.RecInsertFL, TableID: 1, Data: be32(3)}
	require.NoError(t, a.Apply(rec, true, xlog.Position{}))

	assert.Equal(t, uint32(0), st.FreeRecHead)
}

// TestApplyFreeListVariantOutOfSequenceFoundOnListSplicesIt covers the
// *_FL out-of-sequence rule: rec_id is removed from the free list
// wherever it sits, with no gap-threading, since it was a genuine
// reuse of a known-free id.
func TestApplyFreeListVariantOutOfSequenceFoundOnListSplicesIt(t *testing.T) {
	a := newApplier()
	st := a.Table(1)
	st.HeadRecEOF = 10
	st.FreeRecLink[3] = 0
	st.FreeRecHead = 3

	rec := &xlog.Record{Type: xlog.RecInsertFL, TableID: 1, Data: be32(3)}
	require.NoError(t, a.Apply(rec, false, xlog.Position{}))

	assert.Equal(t, uint32(0), st.FreeRecHead)
	assert.Equal(t, uint32(10), st.HeadRecEOF, "EOF must not move for a found free-list reuse")
}

// TestApplyFreeListVariantOutOfSequenceNotFoundFallsBackToEOFAlloc
// covers spec §4.6's worked example: rec=42 is an INSERT_FL out of
// sequence but was never on the free list, so it falls back to the
// EOF-allocation gap-threading rule instead.
func TestApplyFreeListVariantOutOfSequenceNotFoundFallsBackToEOFAlloc(t *testing.T) {
	a := newApplier()
	st := a.Table(1)
	st.HeadRecEOF = 40

	rec := &xlog.Record{Type: xlog.RecInsertFL, TableID: 1, Data: be32(42)}
	require.NoError(t, a.Apply(rec, false, xlog.Position{}))

	assert.Equal(t, uint32(43), st.HeadRecEOF)
	assert.True(t, st.popFreeRecFound(40))
	assert.True(t, st.popFreeRecFound(41))
}

func TestApplyRecFreedPushesFreeList(t *testing.T) {
	a := newApplier()
	rec := &xlog.Record{Type: xlog.RecFreed, TableID: 1, Data: be32(9)}
	require.NoError(t, a.Apply(rec, true, xlog.Position{}))

	st := a.Table(1)
	assert.Equal(t, uint32(9), st.FreeRecHead)
}

func TestApplyRecRemovedAndRemovedExtAreIdentical(t *testing.T) {
	for _, typ := range []xlog.RecordType{xlog.RecRemoved, xlog.RecRemovedExt} {
		a := newApplier()
		st := a.Table(1)
		st.RecordIndexed[4] = true

		rec := &xlog.Record{Type: typ, TableID: 1, Data: be32(4)}
		require.NoError(t, a.Apply(rec, true, xlog.Position{}))

		assert.False(t, st.RecordIndexed[4])
		assert.Equal(t, uint32(4), st.FreeRecHead)
	}
}

// TestApplyRecRemovedOutOfSequenceSplicesRowList covers the
// out-of-sequence rule for REC_REMOVED/REC_FREED: before freeing the
// record, every row still pointing at it is spliced out of the row
// list (spec §4.6).
func TestApplyRecRemovedOutOfSequenceSplicesRowList(t *testing.T) {
	a := newApplier()
	st := a.Table(1)
	st.RowToRecord[7] = 4
	st.RowToRecord[8] = 9

	rec := &xlog.Record{Type: xlog.RecRemoved, TableID: 1, Data: be32(4)}
	require.NoError(t, a.Apply(rec, false, xlog.Position{}))

	_, stillLinked := st.RowToRecord[7]
	assert.False(t, stillLinked)
	assert.Equal(t, uint32(9), st.RowToRecord[8])
	assert.Equal(t, uint32(4), st.FreeRecHead)
}

// TestApplyRecRemovedInSequenceLeavesRowListAlone covers the in-
// sequence rule: no row-list splice happens, since replay already
// applied every row mutation for this record in order.
func TestApplyRecRemovedInSequenceLeavesRowListAlone(t *testing.T) {
	a := newApplier()
	st := a.Table(1)
	st.RowToRecord[7] = 4

	rec := &xlog.Record{Type: xlog.RecRemoved, TableID: 1, Data: be32(4)}
	require.NoError(t, a.Apply(rec, true, xlog.Position{}))

	assert.Equal(t, uint32(4), st.RowToRecord[7])
}

func TestApplyRecMovedRepointsRows(t *testing.T) {
	a := newApplier()
	st := a.Table(1)
	st.RowToRecord[100] = 5
	st.RecordIndexed[5] = true

	data := append(be32(5), be32(8)...)
	rec := &xlog.Record{Type: xlog.RecMoved, TableID: 1, Data: data}
	require.NoError(t, a.Apply(rec, true, xlog.Position{}))

	assert.Equal(t, uint32(8), st.RowToRecord[100])
	assert.False(t, st.RecordIndexed[5])
	assert.True(t, st.RecordIndexed[8])
	assert.Equal(t, uint32(9), st.HeadRecEOF)
}

func TestApplyRowNewOutOfSequenceThreadsGap(t *testing.T) {
	a := newApplier()
	rec := &xlog.Record{Type: xlog.RowNew, TableID: 1, Data: be32(3)}
	require.NoError(t, a.Apply(rec, false, xlog.Position{}))

	st := a.Table(1)
	assert.Equal(t, uint32(4), st.HeadRowEOF)
	for id := uint32(0); id < 3; id++ {
		assert.True(t, st.popFreeRowFound(id))
	}
}

func TestApplyRowAddRecLinksRowToRecord(t *testing.T) {
	a := newApplier()
	data := append(be32(10), be32(20)...)
	rec := &xlog.Record{Type: xlog.RowAddRec, TableID: 1, Data: data}
	require.NoError(t, a.Apply(rec, true, xlog.Position{}))

	st := a.Table(1)
	assert.Equal(t, uint32(20), st.RowToRecord[10])
}

func TestApplyRowAddRecShortPayloadErrors(t *testing.T) {
	a := newApplier()
	rec := &xlog.Record{Type: xlog.RowAddRec, TableID: 1, Data: be32(1)}
	err := a.Apply(rec, true, xlog.Position{})
	assert.Error(t, err)
}

func TestBackgroundVariantMaterializesSweptTransaction(t *testing.T) {
	a := newApplier()
	rec := &xlog.Record{Type: xlog.RecInsertBG, TableID: 1, XactID: 42, Data: be32(1)}
	require.NoError(t, a.Apply(rec, false, xlog.Position{}))

	swept := a.SweptTransactions()
	require.Len(t, swept, 1)
	assert.Equal(t, uint64(42), swept[0].XactID)
	assert.True(t, swept[0].hasFlag(xlog.BGSweep))
	assert.True(t, swept[0].hasFlag(xlog.BGEnded))
}

func TestBackgroundVariantInSequenceIsAlsoSweptWhenUnknown(t *testing.T) {
	// A _BG record materializes its transaction as fully resolved
	// (including SWEEP) whenever the transaction was previously unknown,
	// regardless of whether this particular record applied in or out of
	// sequence (spec §4.6's single combined rule for _BG variants).
	a := newApplier()
	rec := &xlog.Record{Type: xlog.RecInsertBG, TableID: 1, XactID: 42, Data: be32(1)}
	require.NoError(t, a.Apply(rec, true, xlog.Position{}))

	assert.Len(t, a.SweptTransactions(), 1)
}

func TestBackgroundVariantKnownTransactionIsUnchanged(t *testing.T) {
	a := newApplier()
	require.NoError(t, a.Apply(&xlog.Record{Type: xlog.RecInsert, TableID: 1, XactID: 42, Data: be32(1)}, true, xlog.Position{}))
	require.NoError(t, a.Apply(&xlog.Record{Type: xlog.RecInsertBG, TableID: 1, XactID: 42, Data: be32(2)}, true, xlog.Position{}))

	assert.Len(t, a.SweptTransactions(), 0)
}

func TestOpSyncDrainsReorderQueueOutOfSequence(t *testing.T) {
	reg := reorder.NewRegistry()
	a := NewApplier(reg, nil)

	tbl := reg.Table(1)
	tbl.Push(&xlog.Record{Type: xlog.RecInsert, TableID: 1, OpSeq: 5, Data: be32(1)}, xlog.Position{})

	rec := &xlog.Record{Type: xlog.OpSync, TableID: 1}
	require.NoError(t, a.Apply(rec, true, xlog.Position{}))

	st := a.Table(1)
	assert.True(t, st.RecordIndexed[1])
	assert.Equal(t, 0, tbl.Pending())
}

func TestCommitAndCleanupLifecycle(t *testing.T) {
	a := newApplier()
	a.transaction(1)
	require.NoError(t, a.Apply(&xlog.Record{Type: xlog.Commit, XactID: 1}, true, xlog.Position{}))
	assert.True(t, a.transactions[1].hasFlag(xlog.BGEnded))

	require.NoError(t, a.Apply(&xlog.Record{Type: xlog.Cleanup, XactID: 1}, true, xlog.Position{}))
	_, ok := a.transactions[1]
	assert.False(t, ok)
}

func TestUnknownRecordTypeErrors(t *testing.T) {
	a := newApplier()
	err := a.Apply(&xlog.Record{Type: xlog.RecordType(250)}, true, xlog.Position{})
	assert.Error(t, err)
}

func TestShouldRedoIndexDefaultsToTrueWithoutAPosition(t *testing.T) {
	a := newApplier()
	assert.True(t, a.shouldRedoIndex(xlog.Position{LogID: 3, Offset: 10}))
}

func TestApplySkipsIndexWorkBeforeIndexRedoPosition(t *testing.T) {
	a := newApplier()
	a.SetIndexRedoPosition(xlog.Position{LogID: 2, Offset: 100})

	rec := &xlog.Record{Type: xlog.RecInsert, TableID: 1, Data: be32(5)}
	require.NoError(t, a.Apply(rec, true, xlog.Position{LogID: 1, Offset: 50}))

	st := a.Table(1)
	assert.Equal(t, uint32(6), st.HeadRecEOF, "EOF bookkeeping still applies regardless of index gating")
	assert.False(t, st.RecordIndexed[5], "index work before ind_rec_log position must be skipped")
}

func TestApplyRedoesIndexWorkAtOrAfterIndexRedoPosition(t *testing.T) {
	a := newApplier()
	a.SetIndexRedoPosition(xlog.Position{LogID: 2, Offset: 100})

	rec := &xlog.Record{Type: xlog.RecInsert, TableID: 1, Data: be32(5)}
	require.NoError(t, a.Apply(rec, true, xlog.Position{LogID: 2, Offset: 100}))

	st := a.Table(1)
	assert.True(t, st.RecordIndexed[5])
}

func TestLiveBeginPositionsReportsFirstSightingOfEachTransaction(t *testing.T) {
	a := newApplier()
	require.NoError(t, a.Apply(&xlog.Record{Type: xlog.RecInsert, TableID: 1, XactID: 7, Data: be32(1)}, true, xlog.Position{LogID: 1, Offset: 10}))
	require.NoError(t, a.Apply(&xlog.Record{Type: xlog.RecInsert, TableID: 1, XactID: 7, Data: be32(2)}, true, xlog.Position{LogID: 1, Offset: 20}))

	positions := a.LiveBeginPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, xlog.Position{LogID: 1, Offset: 10}, positions[0])
}
