package merger

// candidate is one live station's best next segment in a single Update call.
type candidate struct {
	station int
	left    *packet
}

// Update advances the global output chain by one segment, choosing across
// live stations (spec.md §4.4). It returns the station index and pcrBase
// of the segment it published and ok=true, or ok=false if no progress
// could be made (no live station has a segment ready, or every ready
// segment is still behind the last emitted PCR). Callers loop on Update
// until it returns ok=false.
func (m *Merger) Update(timestampMS int64) (station int, pcrBase uint64, ok bool) {
	m.timestampMS = timestampMS

	last := m.get(m.nextStation, m.nextCounter)
	var floor uint64
	if last != nil {
		floor = last.pcrBase
	}

	var candidates []candidate
	for i := range m.stations {
		if !m.live(i) {
			continue
		}
		var p *packet
		for {
			p = m.advanceSegment(i)
			if p == nil || p.pcrBase >= floor {
				break
			}
		}
		if p == nil {
			continue
		}
		candidates = append(candidates, candidate{station: i, left: p})
	}

	if len(candidates) == 0 {
		return 0, 0, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.left.pcrBase < best.left.pcrBase {
			best = c
		}
	}
	// Tie-break (spec.md §4.4, §9): among candidates tied with the best
	// pcrBase, prefer the station we're currently publishing from for
	// stability; otherwise the lowest-indexed station wins by virtue of
	// the ascending scan above.
	for _, c := range candidates {
		if c.left.pcrBase == best.left.pcrBase && c.station == m.nextStation {
			best = c
			break
		}
	}

	if last != nil {
		if best.left.pcrBase == floor {
			// Continuing on the same PCR moment: skip the duplicate
			// boundary packet and link straight to what follows it.
			last.nextStation = best.left.nextStation
			last.nextCounter = best.left.nextCounter
		} else {
			last.nextStation = best.left.station
			last.nextCounter = best.left.counter
		}
	}

	m.nextStation = best.station
	m.nextCounter = m.stations[best.station].right

	return best.station, best.left.pcrBase, true
}

// UpdateAll repeatedly calls Update until it stops making progress,
// returning the number of segments published. This is the loop the
// driver runs once per tick (spec.md §5). onPublish, if non-nil, is
// called once per published segment with the station index and pcrBase
// Update just reported, so callers (the metrics layer) can observe every
// segment rather than only the final state.
func (m *Merger) UpdateAll(timestampMS int64, onPublish func(station int, pcrBase uint64)) int {
	n := 0
	for {
		station, pcrBase, ok := m.Update(timestampMS)
		if !ok {
			break
		}
		n++
		if onPublish != nil {
			onPublish(station, pcrBase)
		}
	}
	return n
}
