package merger

// get returns the packet stored for (station, counter), or nil if that
// slot is absent: the station is unknown/not live, or the slot currently
// holds a different (station, counter) pair (spec.md §3 invariant 1, §4.2).
//
// This is the sole read primitive every higher layer uses; it absorbs
// ring-wrap and staleness without needing an occupancy bitmap.
func (m *Merger) get(st int, counter uint32) *packet {
	if !m.live(st) {
		return nil
	}
	p := &m.stations[st].packet[counter&ringMask]
	if p.station != st || p.counter != counter {
		return nil
	}
	return p
}

// Get is the exported read primitive, returning the raw TS packet bytes
// for (station, counter) plus whether it was found.
func (m *Merger) Get(st int, counter uint32) ([PacketSize]byte, bool) {
	p := m.get(st, counter)
	if p == nil {
		return [PacketSize]byte{}, false
	}
	return p.raw, true
}
