// Package transport carries signals between dispatchers: Local hands a
// signal directly to another in-process Dispatcher, Remote frames it
// onto a TCP session (hand-rolled over net.Conn) for a signal posted to
// a block living on another node (spec §4.4).
package transport

import "github.com/ndbkernel/ndbkernel/signal"

// Transport delivers a signal toward whatever dispatcher owns its
// Receiver. Send does not wait for the signal to be handled, only for
// it to be accepted for delivery (enqueued locally, or written to the
// wire remotely).
type Transport interface {
	Send(s *signal.Signal) error
}
