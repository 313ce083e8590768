// Package dispatcher implements the single-threaded-per-group signal
// scheduler (spec §4.2): post, post_continue, and run_until_idle over a
// FIFO queue, with CONTINUEB self-continuations and handler-error
// isolation, grounded on the teacher's protocol.AsyncMessageBus worker
// loop (for{select{case msg:=<-queue ...}}) generalized from a single
// dispatch-by-type-code queue to block-addressed routing.
package dispatcher

import (
	"github.com/sirupsen/logrus"

	"github.com/ndbkernel/ndbkernel/block"
	"github.com/ndbkernel/ndbkernel/signal"
)

// Dispatcher delivers signals to the Block a BlockRef resolves to,
// preserving FIFO order per (sender, receiver) pair by virtue of
// draining one global queue in post order: two signals posted to the
// same pair are never reordered, since nothing ever reorders the queue
// itself (spec §4.2).
type Dispatcher struct {
	registry *block.Registry
	queue    []*signal.Signal

	// errored marks instances whose last Handle call returned an error.
	// A block in this state is skipped on subsequent delivery attempts
	// until the owner clears it (e.g. after a supervisor restart).
	errored map[signal.BlockRef]error

	log *logrus.Entry
}

// New returns a Dispatcher routing through registry.
func New(registry *block.Registry, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		registry: registry,
		errored:  make(map[signal.BlockRef]error),
		log:      log,
	}
}

// Post enqueues s for delivery on a future RunUntilIdle call. Posting
// never blocks and never runs a handler inline: the caller's own
// handler frame must return before its own posted signals can be
// delivered, which is what makes handlers non-preemptive.
func (d *Dispatcher) Post(s *signal.Signal) {
	d.queue = append(d.queue, s)
}

// PostContinue posts a CONTINUEB-style self-continuation: s.Sender and
// s.Receiver are both the posting block's own ref. It is otherwise
// identical to Post; the distinct name documents intent at call sites
// the way the kernel's own CONTINUEB posts do.
func (d *Dispatcher) PostContinue(s *signal.Signal) {
	d.Post(s)
}

// RunUntilIdle drains the queue, delivering each signal to the Block
// its Receiver resolves to and enqueueing whatever signals that
// delivery returns, until no signal remains pending. It returns once
// idle; a block posting a CONTINUEB from within its own Handle call
// simply extends the current drain rather than requiring a fresh call.
func (d *Dispatcher) RunUntilIdle() {
	for len(d.queue) > 0 {
		s := d.queue[0]
		d.queue = d.queue[1:]
		d.deliver(s)
	}
}

func (d *Dispatcher) deliver(s *signal.Signal) {
	if cause, ok := d.errored[s.Receiver]; ok {
		d.log.WithFields(logrus.Fields{
			"receiver": s.Receiver,
			"signal":   s.ID,
		}).Warnf("dispatcher: dropping signal to errored instance: %v", cause)
		return
	}

	blk, ok := d.registry.Resolve(s.Receiver)
	if !ok {
		d.log.WithFields(logrus.Fields{
			"receiver": s.Receiver,
			"signal":   s.ID,
		}).Warn("dispatcher: dropping signal to unresolved receiver")
		return
	}

	out, err := blk.Handle(s)
	if err != nil {
		d.errored[s.Receiver] = err
		d.log.WithFields(logrus.Fields{
			"receiver": s.Receiver,
			"signal":   s.ID,
		}).Errorf("dispatcher: handler error, instance marked errored: %v", err)
		return
	}
	for _, next := range out {
		d.Post(next)
	}
}

// ClearError clears ref's errored state, allowing future deliveries to
// reach it again.
func (d *Dispatcher) ClearError(ref signal.BlockRef) {
	delete(d.errored, ref)
}

// Pending returns the number of signals currently queued, mainly for
// tests asserting idle-drain behavior.
func (d *Dispatcher) Pending() int { return len(d.queue) }
