// Package fanout runs the TCP viewer server that pulls merged packets out
// of the merger and streams them to connected clients.
package fanout

import (
	"io"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fsphil/tsmerge/internal/merger"
)

// maxPacketsPerTick bounds how many packets a single viewer can be fed in
// one Tick call, so one fast viewer can't starve the others (spec.md §6).
const maxPacketsPerTick = 512

// writeDeadline is how long a single packet write may block before being
// treated as backpressure.
const writeDeadline = 2 * time.Millisecond

// Puller is the subset of *merger.Merger the fan-out server needs.
type Puller interface {
	Next(lastStation int, lastCounter uint32) (station int, counter uint32, raw [merger.PacketSize]byte, ok bool)
}

// viewer tracks one connected client's position in the output chain.
type viewer struct {
	conn        net.Conn
	lastStation int
	lastCounter uint32
	lastSendMS  int64
	limiter     *rate.Limiter
}

// Server accepts viewer connections and fans the merged stream out to
// each of them once per driver tick.
type Server struct {
	listener   net.Listener
	maxViewers int
	idleMS     int64
	now        func() time.Time

	mu      sync.Mutex
	viewers map[net.Conn]*viewer
}

// New binds addr and prepares a Server. maxViewers caps concurrent
// connections; idle is the per-viewer disconnect timeout (spec.md §4.9).
func New(addr string, maxViewers int, idle time.Duration) (*Server, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:   ln,
		maxViewers: maxViewers,
		idleMS:     idle.Milliseconds(),
		now:        time.Now,
		viewers:    make(map[net.Conn]*viewer),
	}, nil
}

// LocalAddr returns the socket's bound address.
func (s *Server) LocalAddr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting and drops every connected viewer.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.mu.Lock()
	for c := range s.viewers {
		c.Close()
	}
	s.viewers = make(map[net.Conn]*viewer)
	s.mu.Unlock()
	return err
}

// ViewerCount returns the number of currently connected viewers.
func (s *Server) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// Serve accepts connections until the listener is closed. Run it in its
// own goroutine; the driver tick loop calls Tick separately.
func (s *Server) Serve() error {
	log.Printf("fanout: listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}

		s.mu.Lock()
		full := s.maxViewers > 0 && len(s.viewers) >= s.maxViewers
		if !full {
			s.viewers[conn] = &viewer{
				conn:        conn,
				lastStation: -1,
				lastSendMS:  s.now().UnixMilli(),
				limiter:     rate.NewLimiter(rate.Every(20*time.Millisecond), 1),
			}
		}
		s.mu.Unlock()

		if full {
			log.Printf("fanout: rejecting %s: at max viewers (%d)", conn.RemoteAddr(), s.maxViewers)
			conn.Close()
			continue
		}

		log.Printf("fanout: viewer connected from %s", conn.RemoteAddr())
		go s.watch(conn)
	}
}

// watch reads from conn purely to notice EOF or any inbound byte, both of
// which disconnect the viewer immediately: spec.md §6 accepts no control
// protocol from viewers.
func (s *Server) watch(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		_, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("fanout: viewer %s: %v", conn.RemoteAddr(), err)
			}
		}
		s.drop(conn)
		return
	}
}

func (s *Server) drop(conn net.Conn) {
	s.mu.Lock()
	delete(s.viewers, conn)
	s.mu.Unlock()
	conn.Close()
}

// Tick pulls from p for every connected viewer and writes whatever new
// packets are available, up to maxPacketsPerTick each (spec.md §4.9). It
// disconnects viewers that have gone idle past the configured timeout.
func (s *Server) Tick(nowMS int64, p Puller) {
	s.mu.Lock()
	vs := make([]*viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		vs = append(vs, v)
	}
	s.mu.Unlock()

	for _, v := range vs {
		s.tickViewer(nowMS, p, v)
	}
}

func (s *Server) tickViewer(nowMS int64, p Puller, v *viewer) {
	sent := 0
	// A write that hits backpressure spends the limiter's token; the viewer
	// is not written to again until the token has refilled.
	for v.limiter.Tokens() >= 1 && sent < maxPacketsPerTick {
		station, counter, raw, ok := p.Next(v.lastStation, v.lastCounter)
		if !ok {
			break
		}
		v.conn.SetWriteDeadline(s.now().Add(writeDeadline))
		if _, err := v.conn.Write(raw[:]); err != nil {
			if isTimeout(err) {
				v.limiter.Allow()
				break
			}
			s.drop(v.conn)
			return
		}
		v.lastStation, v.lastCounter = station, counter
		v.lastSendMS = nowMS
		sent++
	}

	if s.idleMS > 0 && nowMS-v.lastSendMS > s.idleMS {
		log.Printf("fanout: viewer %s idle, disconnecting", v.conn.RemoteAddr())
		s.drop(v.conn)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
