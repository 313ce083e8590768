package block

import (
	"sync"

	"github.com/ndbkernel/ndbkernel/signal"
	"github.com/ndbkernel/ndbkernel/signals"
)

// Registry maps a BlockRef to the Block instance that owns it,
// grounded on the teacher's protocol.DefaultMessageBus: a map guarded
// by a mutex, with routing-by-identity replacing routing-by-type.
//
// Instance 0 in a lookup key means "any instance will do"; the
// registry resolves it to the block number's canonical instance
// (spec §4.3). A lookup for a specific non-zero instance that was
// never registered does not error at registry level: Resolve reports
// false, and the dispatcher drops the signal without replying.
type Registry struct {
	mu        sync.RWMutex
	instances map[signal.BlockRef]Block
	canonical map[uint16]uint16 // block number -> canonical (first registered) instance
	failed    map[uint32]bool   // node ids currently marked failed
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[signal.BlockRef]Block),
		canonical: make(map[uint16]uint16),
		failed:    make(map[uint32]bool),
	}
}

// Register adds blk under (blk.Number(), instance). The first instance
// registered for a block number becomes that number's canonical
// instance for instance-0 lookups.
func (r *Registry) Register(blk Block, instance uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := signal.MakeBlockRef(blk.Number(), instance)
	r.instances[ref] = blk
	if _, ok := r.canonical[blk.Number()]; !ok {
		r.canonical[blk.Number()] = instance
	}
}

// Resolve looks up the Block a ref addresses, following the instance-0
// canonical-instance rule. ok is false if ref's block number was never
// registered under that exact instance (including the resolved
// canonical one).
func (r *Registry) Resolve(ref signal.BlockRef) (Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance := ref.Instance()
	if ref.IsSingleton() {
		canonical, ok := r.canonical[ref.BlockNo()]
		if !ok {
			return nil, false
		}
		instance = canonical
	}
	blk, ok := r.instances[signal.MakeBlockRef(ref.BlockNo(), instance)]
	return blk, ok
}

// FakeErrorRef builds the Ref for a receiver that could not be
// resolved (spec §4.3's NF_FakeErrorREF): a TcKeyRef-shaped minimal
// refuse echoing the request's connect pointer and transaction id. The
// dispatcher does not call it; it drops unresolved signals instead.
func FakeErrorRef(connectPtr, transID1, transID2 uint32) *signals.TcKeyRef {
	return signals.NewFakeErrorRef(connectPtr, transID1, transID2, signals.ErrNodeFailedDuringRequest)
}

// MarkNodeFailed records nodeID as failed. Subsequent signals destined
// for blocks owned by that node should be rejected by the caller before
// they ever reach Resolve; Registry itself is node-topology-agnostic
// and only tracks the failed set for IsNodeFailed queries.
func (r *Registry) MarkNodeFailed(nodeID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[nodeID] = true
}

// ClearNodeFailed undoes MarkNodeFailed, e.g. after the node rejoins
// under a new incarnation.
func (r *Registry) ClearNodeFailed(nodeID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failed, nodeID)
}

// IsNodeFailed reports whether nodeID is currently marked failed.
func (r *Registry) IsNodeFailed(nodeID uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failed[nodeID]
}
