// Package merger implements the time-indexed, per-station ring buffer that
// reconstructs PCR-delimited segments from redundant UDP TS feeds and
// selects, across stations, the segment that best continues the last
// emitted PCR. It is the core described in spec.md / SPEC_FULL.md §2–4.
//
// The core is single-threaded by design (spec.md §5): every exported
// method assumes exclusive access for its duration. The driver enforces
// this by never touching a *Merger from more than one goroutine — only
// its own tick goroutine ever calls into it — rather than by guarding it
// with a mutex, since Update reads every station on every call anyway.
package merger

const (
	// StationCapacity is the number of station slots in the merger.
	StationCapacity = 8

	// RingSize is the number of packet slots per station, addressed by
	// counter & (RingSize-1).
	RingSize = 1 << 16

	ringMask = RingSize - 1

	// PacketSize is the length of one raw TS packet carried verbatim.
	PacketSize = 188

	// CallsignLen is the fixed width of a station callsign field.
	CallsignLen = 10

	// unset is the sentinel station index meaning "no station".
	unset = -1
)

// packet is one slot in a station's ring buffer.
type packet struct {
	station     int
	counter     uint32
	timestampMS int64
	parseOK     bool
	pid         uint16
	pcrFlag     bool
	pcrBase     uint64
	raw         [PacketSize]byte
	nextStation int
	nextCounter uint32
}

func (p *packet) clearLink() {
	p.nextStation = unset
	p.nextCounter = 0
}

// station is one currently-tracked source.
type station struct {
	sid         [CallsignLen]byte
	current     uint32
	latest      uint32
	timestampMS int64
	left, right uint32
	packet      [RingSize]packet
}

func (s *station) free() bool {
	return s.sid[0] == 0
}

// Merger holds the full ring-buffer state for one merged output stream.
type Merger struct {
	pcrPID      uint16
	timestampMS int64
	nextStation int
	nextCounter uint32
	stations    [StationCapacity]station

	// TimeoutMS and GuardMS default to 10000 and 1000; the driver sets
	// them from configuration and tests may override them.
	TimeoutMS int64
	GuardMS   int64

	malformedTS uint64
}

// New returns a Merger configured to treat pcrPID as the PCR clock PID.
func New(pcrPID uint16) *Merger {
	m := &Merger{
		pcrPID:      pcrPID,
		nextStation: unset,
		TimeoutMS:   10000,
		GuardMS:     1000,
	}
	for i := range m.stations {
		m.stations[i].current = 0
	}
	return m
}

// live reports whether station i has a callsign and has been heard from
// within TimeoutMS of m's current timestamp (spec.md §3 invariant 2).
func (m *Merger) live(i int) bool {
	if i < 0 || i >= StationCapacity {
		return false
	}
	s := &m.stations[i]
	return !s.free() && s.timestampMS > m.timestampMS-m.TimeoutMS
}

// Callsign returns the trimmed callsign of station i, or "" if the index
// is out of range or the slot is free.
func (m *Merger) Callsign(i int) string {
	if i < 0 || i >= StationCapacity {
		return ""
	}
	return trimCallsign(m.stations[i].sid)
}

// MalformedTSCount returns the number of stored envelopes whose TS packet
// payload failed to parse (a malformed envelope's counter/callsign/magic
// were fine, but tspacket.Parse rejected the 188-byte payload itself).
func (m *Merger) MalformedTSCount() uint64 {
	return m.malformedTS
}

// LiveStations returns the indices of currently-live stations.
func (m *Merger) LiveStations() []int {
	var out []int
	for i := range m.stations {
		if m.live(i) {
			out = append(out, i)
		}
	}
	return out
}

func trimCallsign(b [CallsignLen]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
