package transport

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/AlexStocks/log4go"

	"github.com/ndbkernel/ndbkernel/signal"
)

// Session and EventListener mirror the shape of the teacher's
// server/net.Session / server/net.EventListener pair (handleLoop +
// handlePackage goroutines, a buffered write queue, a cron ticker),
// narrowed from a generic byte-stream session down to one that only
// ever carries *signal.Signal frames.
type EventListener interface {
	OnOpen(ss Session) error
	OnClose(ss Session)
	OnError(ss Session, err error)
	OnCron(ss Session)
	OnMessage(ss Session, s *signal.Signal)
}

// Session is a single TCP connection carrying framed signals to and
// from a remote node.
type Session interface {
	WritePkg(s *signal.Signal, timeout time.Duration) error
	Close()
	RemoteAddr() string
	Stat() string
}

const (
	maxReadBufLen  = 4 * 1024
	defaultWQLen   = 256
	defaultCron    = 30 * time.Second
	netIOTimeout   = 30 * time.Second
)

type tcpSession struct {
	conn     net.Conn
	listener EventListener

	wQ   chan *signal.Signal
	done chan struct{}
	once sync.Once

	readPkgNum  uint32
	writePkgNum uint32
}

// NewTCPSession wraps conn and starts its read/write/cron goroutines,
// grounded on session.run/handleLoop/handlePackage.
func NewTCPSession(conn net.Conn, listener EventListener) Session {
	ss := &tcpSession{
		conn:     conn,
		listener: listener,
		wQ:       make(chan *signal.Signal, defaultWQLen),
		done:     make(chan struct{}),
	}
	if err := listener.OnOpen(ss); err != nil {
		log.Error("[tcpSession] OnOpen(%s) = error:%+v", ss.Stat(), err)
		ss.Close()
		return ss
	}
	go ss.writeLoop()
	go ss.readLoop()
	return ss
}

func (s *tcpSession) RemoteAddr() string { return s.conn.RemoteAddr().String() }

func (s *tcpSession) Stat() string {
	return fmt.Sprintf("session{peer:%s, read:%d, written:%d}",
		s.RemoteAddr(), atomic.LoadUint32(&s.readPkgNum), atomic.LoadUint32(&s.writePkgNum))
}

func (s *tcpSession) WritePkg(sig *signal.Signal, timeout time.Duration) error {
	select {
	case <-s.done:
		return fmt.Errorf("transport: session %s is closed", s.RemoteAddr())
	default:
	}
	if timeout <= 0 {
		return s.writeNow(sig)
	}
	select {
	case s.wQ <- sig:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("transport: session %s write queue full", s.RemoteAddr())
	}
}

func (s *tcpSession) writeNow(sig *signal.Signal) error {
	frame, err := EncodeSignal(sig)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(netIOTimeout))
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("transport: write to %s: %w", s.RemoteAddr(), err)
	}
	atomic.AddUint32(&s.writePkgNum, 1)
	return nil
}

func (s *tcpSession) writeLoop() {
	cron := time.NewTicker(defaultCron)
	defer cron.Stop()
	for {
		select {
		case <-s.done:
			return
		case sig := <-s.wQ:
			if err := s.writeNow(sig); err != nil {
				s.listener.OnError(s, err)
			}
		case <-cron.C:
			s.listener.OnCron(s)
		}
	}
}

func (s *tcpSession) readLoop() {
	var readErr error
	defer func() {
		s.listener.OnClose(s)
		if readErr != nil {
			s.listener.OnError(s, readErr)
		}
		s.stop()
	}()

	buf := make([]byte, maxReadBufLen)
	pending := new(bytes.Buffer)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(netIOTimeout))
		n, err := s.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			readErr = err
			return
		}
		pending.Write(buf[:n])

		for {
			sig, consumed, err := DecodeSignal(pending.Bytes())
			if err != nil {
				readErr = err
				return
			}
			if sig == nil {
				break
			}
			pending.Next(consumed)
			atomic.AddUint32(&s.readPkgNum, 1)
			s.listener.OnMessage(s, sig)
		}
	}
}

func (s *tcpSession) Close() { s.stop() }

func (s *tcpSession) stop() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
