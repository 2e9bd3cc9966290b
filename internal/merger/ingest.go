package merger

import "github.com/fsphil/tsmerge/internal/tspacket"

const (
	// EnvelopeSize is the length of one framed ingest record (spec.md §6):
	// 2-byte magic + 4-byte counter + 10-byte callsign + 188-byte TS packet.
	EnvelopeSize = 2 + 4 + CallsignLen + PacketSize

	magicByte0 = 0xA1
	magicByte1 = 0x55

	envCounterOff  = 2
	envCallsignOff = 6
	envTSOff       = 16
)

// DropReason classifies why Feed declined to store an envelope, matching
// the error taxonomy in spec.md §7. DropNone means the packet was stored
// (it may still have parseOK == false if its TS header was malformed).
type DropReason int

const (
	DropNone DropReason = iota
	DropMalformedFrame
	DropLate
	DropDuplicate
	DropStationTableFull
)

func (r DropReason) String() string {
	switch r {
	case DropNone:
		return "none"
	case DropMalformedFrame:
		return "malformed_frame"
	case DropLate:
		return "late"
	case DropDuplicate:
		return "duplicate"
	case DropStationTableFull:
		return "station_table_full"
	default:
		return "unknown"
	}
}

// Feed validates and ingests one 204-byte envelope (spec.md §4.5, §6).
// timestampMS is the wall-clock receive time. Feed never blocks and never
// allocates; malformed/late/duplicate envelopes are dropped silently per
// the caller's policy (the driver may log using the returned reason).
func (m *Merger) Feed(timestampMS int64, envelope []byte) DropReason {
	m.timestampMS = timestampMS

	if len(envelope) != EnvelopeSize || envelope[0] != magicByte0 || envelope[1] != magicByte1 {
		return DropMalformedFrame
	}

	counter := uint32(envelope[envCounterOff]) |
		uint32(envelope[envCounterOff+1])<<8 |
		uint32(envelope[envCounterOff+2])<<16 |
		uint32(envelope[envCounterOff+3])<<24

	var sid [CallsignLen]byte
	copy(sid[:], envelope[envCallsignOff:envCallsignOff+CallsignLen])

	idx := m.lookupStation(sid)
	if idx < 0 {
		idx = m.newStationSlot()
		if idx < 0 {
			return DropStationTableFull
		}
		m.resetStation(idx, sid, counter)
	} else {
		st := &m.stations[idx]
		d := int32(counter) - int32(st.current)
		if d < -0xFFFF || d > 0xFFFF {
			// The counter is far out of range; assume the station restarted.
			m.resetStation(idx, sid, counter)
		} else if d <= 0 {
			return DropLate
		}
	}

	st := &m.stations[idx]
	slot := &st.packet[counter&ringMask]
	if slot.station == idx && slot.counter == counter {
		return DropDuplicate
	}

	*slot = packet{}
	slot.station = idx
	slot.counter = counter
	slot.timestampMS = timestampMS
	copy(slot.raw[:], envelope[envTSOff:envTSOff+PacketSize])

	hdr, ok := tspacket.Parse(slot.raw[:])
	slot.parseOK = ok
	if ok {
		slot.pid = hdr.PID
		slot.pcrFlag = hdr.PCRFlag
		slot.pcrBase = hdr.PCRBase
	} else {
		m.malformedTS++
	}
	slot.clearLink()

	if d := int32(counter) - int32(st.latest); d > 0 {
		st.latest = counter
	}
	st.timestampMS = timestampMS

	return DropNone
}

// lookupStation returns the index of the live station with callsign sid,
// or unset if none matches (spec.md §4.5 step 4).
func (m *Merger) lookupStation(sid [CallsignLen]byte) int {
	for i := range m.stations {
		if m.stations[i].sid == sid && m.live(i) {
			return i
		}
	}
	return unset
}

// newStationSlot returns a free or expired station slot index, or unset if
// the table is full (spec.md §4.5 step 4, §7 StationTableFull).
func (m *Merger) newStationSlot() int {
	for i := range m.stations {
		if m.stations[i].free() || !m.live(i) {
			return i
		}
	}
	return unset
}

// resetStation reinitializes station idx for a first-seen or restarted
// callsign (spec.md §4.5 step 5, CounterReset).
func (m *Merger) resetStation(idx int, sid [CallsignLen]byte, counter uint32) {
	m.stations[idx] = station{}
	m.stations[idx].sid = sid
	// A freshly zeroed station has packet[0] == {station: 0, counter: 0},
	// which looks like a genuinely valid packet for station 0 counter 0.
	// Force a mismatch so get() correctly reports it absent until real
	// data lands there.
	m.stations[idx].packet[0].counter = 1
	m.stations[idx].current = counter
	m.stations[idx].latest = counter
}
