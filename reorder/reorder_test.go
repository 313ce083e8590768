package reorder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndbkernel/ndbkernel/xlog"
)

func rec(tableID uint32, opSeq uint32) *xlog.Record {
	return &xlog.Record{Type: xlog.RecUpdate, TableID: tableID, OpSeq: opSeq}
}

func TestTableDrainsInOrderDespiteArrival(t *testing.T) {
	tbl := NewTable(1)
	tbl.Push(rec(1, 2), xlog.Position{})
	tbl.Push(rec(1, 0), xlog.Position{})
	tbl.Push(rec(1, 1), xlog.Position{})

	out := tbl.DrainInSequence()
	require.Len(t, out, 3)
	assert.Equal(t, uint32(0), out[0].Rec.OpSeq)
	assert.Equal(t, uint32(1), out[1].Rec.OpSeq)
	assert.Equal(t, uint32(2), out[2].Rec.OpSeq)
	assert.Equal(t, 0, tbl.Pending())
}

func TestTableStopsAtGap(t *testing.T) {
	tbl := NewTable(1)
	tbl.Push(rec(1, 0), xlog.Position{})
	tbl.Push(rec(1, 2), xlog.Position{}) // gap at 1

	out := tbl.DrainInSequence()
	require.Len(t, out, 1)
	assert.Equal(t, uint32(0), out[0].Rec.OpSeq)
	assert.Equal(t, 1, tbl.Pending())

	// the gap is never filled, so a second drain call yields nothing more
	out = tbl.DrainInSequence()
	assert.Len(t, out, 0)
	assert.Equal(t, 1, tbl.Pending())
}

func TestTableSyncOperationsForcesRemainderOutOfSequence(t *testing.T) {
	tbl := NewTable(1)
	tbl.Push(rec(1, 0), xlog.Position{})
	tbl.Push(rec(1, 5), xlog.Position{})
	tbl.Push(rec(1, 3), xlog.Position{})

	tbl.DrainInSequence() // consumes op-seq 0, leaves 3 and 5 queued

	out := tbl.SyncOperations()
	require.Len(t, out, 2)
	assert.Equal(t, uint32(3), out[0].Rec.OpSeq)
	assert.Equal(t, uint32(5), out[1].Rec.OpSeq)
	assert.Equal(t, 0, tbl.Pending())
}

func TestTableOpSeqWrapAround(t *testing.T) {
	tbl := NewTable(1)
	tbl.Push(rec(1, math.MaxUint32), xlog.Position{})
	tbl.Push(rec(1, 0), xlog.Position{})
	tbl.Push(rec(1, 1), xlog.Position{})

	out := tbl.DrainInSequence()
	require.Len(t, out, 3)
	assert.Equal(t, uint32(math.MaxUint32), out[0].Rec.OpSeq)
	assert.Equal(t, uint32(0), out[1].Rec.OpSeq)
	assert.Equal(t, uint32(1), out[2].Rec.OpSeq)
}

func TestTableHeadPositionReportsOldestQueued(t *testing.T) {
	tbl := NewTable(1)
	_, ok := tbl.HeadPosition()
	assert.False(t, ok)

	tbl.Push(rec(1, 5), xlog.Position{LogID: 2, Offset: 40})
	tbl.Push(rec(1, 3), xlog.Position{LogID: 1, Offset: 10})

	pos, ok := tbl.HeadPosition()
	require.True(t, ok)
	assert.Equal(t, xlog.Position{LogID: 1, Offset: 10}, pos)
}

func TestTablePushPanicsPastMaxQueueDepth(t *testing.T) {
	tbl := NewTable(1)
	tbl.next = 0
	tbl.haveNext = true
	tbl.queue = make([]Entry, maxQueueDepth)

	assert.Panics(t, func() { tbl.Push(rec(1, maxQueueDepth+1), xlog.Position{}) })
}

func TestRegistryQueuedHeadPositionsCollectsAcrossTables(t *testing.T) {
	reg := NewRegistry()
	reg.Table(1).Push(rec(1, 5), xlog.Position{LogID: 1, Offset: 1})
	reg.Table(2) // no pending ops

	positions := reg.QueuedHeadPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, xlog.Position{LogID: 1, Offset: 1}, positions[0])
}

func TestRegistryLazyCreatesTables(t *testing.T) {
	reg := NewRegistry()
	assert.Len(t, reg.All(), 0)

	reg.Table(7)
	assert.Len(t, reg.All(), 1)

	// repeated lookups return the same table
	reg.Table(7).Push(rec(7, 0), xlog.Position{})
	assert.Equal(t, 1, reg.Table(7).Pending())
}
