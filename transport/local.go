package transport

import (
	"github.com/ndbkernel/ndbkernel/dispatcher"
	"github.com/ndbkernel/ndbkernel/signal"
)

// Local delivers a signal directly to a Dispatcher in the same
// process, transferring ownership of its sections without copying
// (spec §4.4: "local transport hands off the signal by pointer").
type Local struct {
	Dispatcher *dispatcher.Dispatcher
}

// NewLocal returns a Local transport posting onto d.
func NewLocal(d *dispatcher.Dispatcher) *Local {
	return &Local{Dispatcher: d}
}

func (l *Local) Send(s *signal.Signal) error {
	l.Dispatcher.Post(s)
	return nil
}
