// Package datalog manages the overflow extents large row payloads
// spill into when they don't fit inline (spec §4.8 "data-log extent
// manager"), grounded on
// server/innodb/manager.ExtentManager's cache + free-list allocator,
// repurposed from fixed-size InnoDB page extents to snappy-compressed
// xlog overflow extents with a two-phase delete lifecycle.
package datalog

import (
	"sync"

	"github.com/golang/snappy"

	"github.com/ndbkernel/ndbkernel/kernelerr"
)

// State is an extent's position in its delete lifecycle (spec §4.8):
// an extent becomes eligible for reuse only once the checkpoint that
// observed its deletion has itself retired, so a deleted extent's id
// is not handed back out by Allocate until it crosses from
// LogicallyDeleted to PhysicallyDeleted.
type State int

const (
	Active State = iota
	LogicallyDeleted
	PhysicallyDeleted
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case LogicallyDeleted:
		return "logically_deleted"
	case PhysicallyDeleted:
		return "physically_deleted"
	default:
		return "unknown"
	}
}

// Extent is one overflow-data extent: its id, lifecycle state, and its
// snappy-compressed payload.
type Extent struct {
	ID    uint32
	State State
	data  []byte // compressed
}

// Manager allocates, reads, and deletes data-log extents, grounded on
// ExtentManager's cache-plus-free-list shape.
type Manager struct {
	mu sync.RWMutex

	cache       map[uint32]*Extent
	freeExtents []uint32
	nextID      uint32
}

// NewManager returns an empty extent manager.
func NewManager() *Manager {
	return &Manager{cache: make(map[uint32]*Extent)}
}

// Allocate returns a fresh Active extent holding the snappy-compressed
// form of data, preferring a physically-deleted id from the free list
// before minting a new one.
func (m *Manager) Allocate(data []byte) *Extent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id uint32
	if len(m.freeExtents) > 0 {
		id = m.freeExtents[len(m.freeExtents)-1]
		m.freeExtents = m.freeExtents[:len(m.freeExtents)-1]
	} else {
		id = m.nextID
		m.nextID++
	}

	ext := &Extent{ID: id, State: Active, data: snappy.Encode(nil, data)}
	m.cache[id] = ext
	return ext
}

// Get returns the decompressed payload of extentID.
func (m *Manager) Get(extentID uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ext, ok := m.cache[extentID]
	if !ok {
		return nil, kernelerr.NotFound("datalog: extent %d", extentID)
	}
	out, err := snappy.Decode(nil, ext.data)
	if err != nil {
		return nil, kernelerr.Structural(err, "datalog: snappy decode")
	}
	return out, nil
}

// MarkLogicallyDeleted transitions extentID from Active to
// LogicallyDeleted (spec §4.8's first delete phase). Deleting an
// already logically- or physically-deleted extent is a no-op: the
// caller may be replaying a REC_FREED it already applied, and delete
// must tolerate "already gone" (spec §4.6).
func (m *Manager) MarkLogicallyDeleted(extentID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext, ok := m.cache[extentID]
	if !ok {
		return nil
	}
	if ext.State == Active {
		ext.State = LogicallyDeleted
	}
	return nil
}

// Retire completes the delete lifecycle for every extent that was
// LogicallyDeleted as of the checkpoint that just retired, moving them
// to PhysicallyDeleted and onto the free list (spec §4.8: "cleared
// only by the following checkpoint").
func (m *Manager) Retire(extentIDs []uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range extentIDs {
		ext, ok := m.cache[id]
		if !ok || ext.State != LogicallyDeleted {
			continue
		}
		ext.State = PhysicallyDeleted
		ext.data = nil
		m.freeExtents = append(m.freeExtents, id)
	}
}

// State reports extentID's current lifecycle state.
func (m *Manager) State(extentID uint32) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ext, ok := m.cache[extentID]
	if !ok {
		return PhysicallyDeleted, false
	}
	return ext.State, true
}

// LogicallyDeletedIDs returns every extent id currently awaiting the
// next checkpoint's Retire call, for the checkpointer to hold until
// the following round. These ids are not written to the restart file;
// its deleted-log-ids list carries xlog file ids.
func (m *Manager) LogicallyDeletedIDs() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []uint32
	for id, ext := range m.cache {
		if ext.State == LogicallyDeleted {
			ids = append(ids, id)
		}
	}
	return ids
}
