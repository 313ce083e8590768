// Package block defines the Block interface every actor in the
// signal-passing kernel implements, and the process-context registry
// that maps a BlockRef to the worker that owns it (spec §4.3).
package block

import "github.com/ndbkernel/ndbkernel/signal"

// Block is a single-threaded-per-instance actor: the dispatcher only
// ever calls Handle from one goroutine at a time for a given instance,
// and never re-enters Handle before it returns (spec §4.2: "handlers
// are non-preemptive").
//
// Handle returns signals the block wants posted as a side effect of
// processing s (e.g. a Conf/Ref reply, or a CONTINUEB to itself). A
// non-nil error puts the instance into an error state; the dispatcher
// then drops every later signal addressed to it instead of delivering
// it. No Ref reply is sent back to the senders of those signals.
type Block interface {
	// Number is this block's static identity (e.g. 245 for DBTC),
	// constant for the lifetime of the process.
	Number() uint16

	// Handle processes one signal and returns zero or more signals to
	// post as a consequence.
	Handle(s *signal.Signal) ([]*signal.Signal, error)
}

// Instance pairs a Block implementation with the instance number the
// registry dispatches it under.
type Instance struct {
	Block    Block
	Instance uint16
}

func (i Instance) Ref() signal.BlockRef {
	return signal.MakeBlockRef(i.Block.Number(), i.Instance)
}
