package merger

// Next is the fan-out entry point (spec.md §4.6). Given the station and
// counter of the last packet delivered to a viewer, it returns the
// successor along the output chain.
//
// If the viewer's last position has been evicted from the ring (or the
// viewer has never received a packet — pass station < 0), Next re-anchors
// the viewer to the current head of the published chain instead of
// reporting absent, accepting a discontinuity in what that viewer sees.
//
// ok is false when there is nothing new to deliver yet; the caller should
// retry on a later tick.
func (m *Merger) Next(lastStation int, lastCounter uint32) (stationOut int, counterOut uint32, raw [PacketSize]byte, ok bool) {
	p := m.get(lastStation, lastCounter)
	if p == nil {
		p = m.get(m.nextStation, m.nextCounter)
	} else {
		p = m.get(p.nextStation, p.nextCounter)
	}
	if p == nil {
		return 0, 0, [PacketSize]byte{}, false
	}
	return p.station, p.counter, p.raw, true
}
