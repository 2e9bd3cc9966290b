// Package ingest runs the UDP listener that feeds station envelopes into
// the merger.
package ingest

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/fsphil/tsmerge/internal/merger"
)

// batchSize is the number of datagrams read per ReadBatch syscall.
const batchSize = 64

// recvBufBytes sizes the kernel socket receive buffer generously so a
// burst of several stations sending concurrently doesn't overrun it
// between ticks.
const recvBufBytes = 4 << 20

// Feeder is the subset of *merger.Merger the listener needs. Kept narrow
// so tests can substitute a fake.
type Feeder interface {
	Feed(timestampMS int64, envelope []byte) merger.DropReason
}

// Stats counts outcomes across all datagrams the listener has processed.
type Stats struct {
	Envelopes   uint64
	MalformedDG uint64 // whole datagrams dropped for a bad length
	Dropped     [5]uint64
}

// Listener binds a UDP socket and feeds every well-formed envelope it
// receives into a Feeder.
type Listener struct {
	pc       *ipv4.PacketConn
	conn     *net.UDPConn
	deadline time.Duration

	feeder Feeder
	now    func() time.Time

	stats Stats
}

// New binds addr and prepares a Listener that timestamps envelopes with
// time.Now.
func New(addr string, feeder Feeder) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	if err := conn.SetReadBuffer(recvBufBytes); err != nil {
		log.Printf("ingest: SetReadBuffer: %v", err)
	}
	return &Listener{
		pc:       ipv4.NewPacketConn(conn),
		conn:     conn,
		deadline: 50 * time.Millisecond,
		feeder:   feeder,
		now:      time.Now,
	}, nil
}

// LocalAddr returns the socket's bound address.
func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// Stats returns a snapshot of the listener's running counters.
func (l *Listener) Stats() Stats {
	return l.stats
}

// Close releases the underlying socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Poll drains currently-pending datagrams (bounded by the read deadline)
// and feeds every envelope they contain into the Feeder. It returns the
// number of envelopes the Feeder stored (DropNone). Each read waits at
// most the listener's read deadline, so the
// driver's tick loop (spec.md §5) stays responsive even under sustained
// UDP load.
func (l *Listener) Poll() int {
	msgs := make([]ipv4.Message, batchSize)
	bufs := make([][]byte, batchSize)
	for i := range msgs {
		bufs[i] = make([]byte, merger.EnvelopeSize*2)
		msgs[i].Buffers = [][]byte{bufs[i]}
	}

	fed := 0
	for {
		l.conn.SetReadDeadline(l.now().Add(l.deadline))
		n, err := l.pc.ReadBatch(msgs, 0)
		if n == 0 {
			if err != nil && !isTimeout(err) {
				log.Printf("ingest: read batch: %v", err)
			}
			return fed
		}

		nowMS := l.now().UnixMilli()
		for i := 0; i < n; i++ {
			fed += l.feedDatagram(nowMS, bufs[i][:msgs[i].N])
		}
		if n < batchSize {
			return fed
		}
	}
}

func (l *Listener) feedDatagram(nowMS int64, dg []byte) int {
	if len(dg) == 0 || len(dg)%merger.EnvelopeSize != 0 {
		l.stats.MalformedDG++
		return 0
	}
	fed := 0
	for off := 0; off < len(dg); off += merger.EnvelopeSize {
		rec := dg[off : off+merger.EnvelopeSize]
		reason := l.feeder.Feed(nowMS, rec)
		l.stats.Envelopes++
		if reason == merger.DropNone {
			fed++
		} else {
			l.stats.Dropped[reason]++
		}
	}
	return fed
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
