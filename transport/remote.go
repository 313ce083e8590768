package transport

import (
	"fmt"
	"net"

	log "github.com/AlexStocks/log4go"
	getty "github.com/AlexStocks/getty/transport"

	"github.com/ndbkernel/ndbkernel/dispatcher"
	"github.com/ndbkernel/ndbkernel/signal"
)

// dispatcherListener feeds every signal arriving on a Session into the
// local Dispatcher, the way the teacher's mysqlMsgHandler fed protocol
// messages into its session handler.
type dispatcherListener struct {
	dispatcher *dispatcher.Dispatcher
}

func (l *dispatcherListener) OnOpen(ss Session) error { return nil }
func (l *dispatcherListener) OnClose(ss Session)      {}
func (l *dispatcherListener) OnError(ss Session, err error) {
	log.Error("%s, session error: %+v", ss.Stat(), err)
}
func (l *dispatcherListener) OnCron(ss Session) {}

func (l *dispatcherListener) OnMessage(ss Session, s *signal.Signal) {
	l.dispatcher.Post(s)
}

// Remote sends signals to a node reachable over a TCP session framed
// with EncodeSignal/DecodeSignal (spec §4.4, §6).
type Remote struct {
	session Session
}

// DialRemote connects to addr and wires inbound signals into d.
func DialRemote(addr string, d *dispatcher.Dispatcher) (*Remote, error) {
	conn, err := net.DialTimeout("tcp", addr, netIOTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	ss := NewTCPSession(conn, &dispatcherListener{dispatcher: d})
	return &Remote{session: ss}, nil
}

func (r *Remote) Send(s *signal.Signal) error {
	if err := r.session.WritePkg(s, 0); err != nil {
		return fmt.Errorf("transport: write signal %d to %s: %w", s.ID, s.Receiver, err)
	}
	return nil
}

// Server accepts inbound connections and wires each one's signals into
// d, grounded on the teacher's MySQLServer.initServer accept loop.
type Server struct {
	listener net.Listener
	d        *dispatcher.Dispatcher
}

// ListenAndServe binds addr and starts accepting sessions in the
// background. It logs the getty transport version in its startup line
// the way mysql_server.go's banner does, even though framing here is
// hand-rolled rather than going through getty's own session type.
func ListenAndServe(addr string, d *dispatcher.Dispatcher) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	log.Info("ndbkernel transport listening on %s (getty %s)", addr, getty.Version)

	srv := &Server{listener: ln, d: d}
	go srv.acceptLoop()
	return srv, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			log.Info("transport: accept loop exiting: %+v", err)
			return
		}
		NewTCPSession(conn, &dispatcherListener{dispatcher: s.d})
	}
}

func (s *Server) Close() error { return s.listener.Close() }
