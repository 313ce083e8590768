// Package table manages the open-table pool: per-table record/row file
// handles, free-list heads, and recovered state, reference-counted and
// bounded by conf.Options.MaxOpenTables (spec §4.8, §5 "resource
// model"), grounded on
// server/innodb/manager.ExtentManager's cache-plus-mutex shape.
package table

import (
	"fmt"
	"os"
	"sync"

	"github.com/ndbkernel/ndbkernel/kernelerr"
	"github.com/ndbkernel/ndbkernel/recovery"
)

// Open is one table's open-state: its underlying files, the recovered
// free-space bookkeeping handed off from the applier, and its op-seq
// head.
type Open struct {
	TableID uint32

	RecordFile *os.File
	RowFile    *os.File

	State *recovery.TableState

	// OpSeqHead is the next op-seq this table will assign to a new
	// write (spec §4.1): recovery leaves it one past the highest op-seq
	// observed for the table.
	OpSeqHead uint32

	RecoveryDone bool

	refCount int
}

// Pool is the reference-counted open-table cache.
type Pool struct {
	mu      sync.Mutex
	dataDir string
	max     int
	tables  map[uint32]*Open
	lru     []uint32 // least-recently-released order, front = oldest
}

// NewPool returns a Pool rooted at dataDir, evicting closed (zero
// refcount) tables once more than max are open at once.
func NewPool(dataDir string, max int) *Pool {
	return &Pool{dataDir: dataDir, max: max, tables: make(map[uint32]*Open)}
}

// Acquire opens (or returns the already-open) table tableID, bumping
// its reference count. The caller must call Release when done.
func (p *Pool) Acquire(tableID uint32) (*Open, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.tables[tableID]; ok {
		t.refCount++
		p.removeFromLRU(tableID)
		return t, nil
	}

	if len(p.tables) >= p.max {
		if !p.evictOneLocked() {
			return nil, kernelerr.Transient(fmt.Errorf("open table pool at capacity (%d)", p.max), "table: acquire")
		}
	}

	t, err := p.openLocked(tableID)
	if err != nil {
		return nil, err
	}
	t.refCount = 1
	p.tables[tableID] = t
	return t, nil
}

// Release decrements tableID's reference count. At zero, the table
// stays open (for reuse) but becomes eligible for eviction under
// memory pressure from a future Acquire.
func (p *Pool) Release(tableID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tables[tableID]
	if !ok {
		return
	}
	t.refCount--
	if t.refCount <= 0 {
		t.refCount = 0
		p.lru = append(p.lru, tableID)
	}
}

func (p *Pool) removeFromLRU(tableID uint32) {
	for i, id := range p.lru {
		if id == tableID {
			p.lru = append(p.lru[:i], p.lru[i+1:]...)
			return
		}
	}
}

// evictOneLocked closes and drops the oldest refcount-zero table. It
// reports false if every open table is still referenced.
func (p *Pool) evictOneLocked() bool {
	if len(p.lru) == 0 {
		return false
	}
	id := p.lru[0]
	p.lru = p.lru[1:]
	if t, ok := p.tables[id]; ok {
		t.RecordFile.Close()
		t.RowFile.Close()
		delete(p.tables, id)
	}
	return true
}

func (p *Pool) openLocked(tableID uint32) (*Open, error) {
	recPath := fmt.Sprintf("%s/%08d.rec", p.dataDir, tableID)
	rowPath := fmt.Sprintf("%s/%08d.row", p.dataDir, tableID)

	recFile, err := os.OpenFile(recPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, kernelerr.Transient(err, "table: open record file")
	}
	rowFile, err := os.OpenFile(rowPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		recFile.Close()
		return nil, kernelerr.Transient(err, "table: open row file")
	}

	return &Open{
		TableID:    tableID,
		RecordFile: recFile,
		RowFile:    rowFile,
		State:      recovery.NewTableState(tableID),
	}, nil
}

// AdoptRecovered installs the applier's recovered state for tableID,
// the handoff from crash recovery to steady-state table access (spec
// §4.6 end-of-restart / §4.8). OpSeqHead becomes one past the highest
// op-seq the applier observed.
func (p *Pool) AdoptRecovered(tableID uint32, state *recovery.TableState, highestOpSeq uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tables[tableID]
	if !ok {
		return kernelerr.NotFound("table: %d not open", tableID)
	}
	t.State = state
	t.OpSeqHead = highestOpSeq + 1
	t.RecoveryDone = true
	return nil
}

// Close closes every table in the pool regardless of refcount,
// intended for process shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.tables {
		t.RecordFile.Close()
		t.RowFile.Close()
		delete(p.tables, id)
	}
	p.lru = nil
}
