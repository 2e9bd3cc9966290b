package merger

// nextPCR scans counters start, start+1, ... up to and including the
// station's latest counter, looking for the first packet on the PCR PID
// with a valid PCR outside the guard window (spec.md §4.3). As a side
// effect it links every walked packet's next_* fields to the packet
// walked immediately after it, pre-building the intra-station chain that
// Next later traverses. seed, if non-nil, is treated as the packet
// immediately preceding start, so it gets linked to the first packet the
// walk encounters; this is what closes the chain across a segment
// boundary that advanceSegment reuses without re-walking it.
func (m *Merger) nextPCR(idx int, start uint32, seed *packet) *packet {
	st := &m.stations[idx]
	prev := seed
	for c := start; c != st.latest+1; c++ {
		p := &st.packet[c&ringMask]
		if p.station != idx || p.counter != c {
			continue
		}
		if prev != nil {
			prev.nextStation = p.station
			prev.nextCounter = p.counter
		}
		prev = p

		if !p.parseOK || p.pid != m.pcrPID || !p.pcrFlag {
			continue
		}
		if p.timestampMS >= m.timestampMS-m.GuardMS {
			// Still inside the guard window; not yet eligible as a
			// segment boundary.
			continue
		}
		return p
	}
	return nil
}

// advanceSegment finds the next [left, right) segment for station idx,
// committing it to the station's left/right/current fields and returning
// the left-edge packet, or nil if no further segment can be produced yet
// (spec.md §4.3).
func (m *Merger) advanceSegment(idx int) *packet {
	st := &m.stations[idx]

	left := m.get(idx, st.right)
	if st.left == st.right || left == nil {
		left = m.nextPCR(idx, st.current, nil)
		if left == nil {
			return nil
		}
	}

	right := m.nextPCR(idx, left.counter+1, left)
	if right == nil {
		return nil
	}

	st.left = left.counter
	st.right = right.counter
	st.current = right.counter + 1

	return left
}
