package signals

// FailCause names why a node is being reported failed, grounded on
// storage/ndb/include/kernel/signaldata/FailRep.hpp's FailCause enum.
type FailCause uint32

const (
	FailOwnFailure FailCause = iota
	FailOtherNodeWhenWeStart
	FailInPrepFailReq
	FailStartInRegReq
	FailHeartbeatFailure
	FailLinkFailure
	FailOtherNodeFailedDuringStart
	FailMultiNodeShutdown
	FailPartitionedCluster
)

// FailRep reports that a node has failed, and is broadcast to every
// block with state pinned to that node's liveness (spec §4.3's
// FAIL_REP/NODE_FAIL_REP handling), grounded on FailRep.hpp.
type FailRep struct {
	FailNodeID uint32
	FailCause  FailCause
	President  uint32

	// Partition is the node bitmask describing the surviving partition
	// this node belongs to, carried as a long section rather than an
	// inline word once it exceeds a handful of nodes.
	Partition []uint32
}

// NodeFailRep names a failed node for the block registry (spec §4.3).
// The registry only records failed node ids (MarkNodeFailed); pending
// Reqs addressed to that node's blocks are not rewritten into Refs.
type NodeFailRep struct {
	FailedNodeID uint32
}
