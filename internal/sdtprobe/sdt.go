// Package sdtprobe extracts broadcaster identity from the PAT and SDT
// tables that every compliant MPEG transport stream carries in its first
// few kilobytes:
//
//   - PAT (PID 0x0000) — transport_stream_id
//   - SDT (PID 0x0011) — original_network_id, service_id, provider_name,
//     service_name, service_type
//
// The DVB triplet (original_network_id, transport_stream_id, service_id)
// is a globally registered identifier at dvbservices.com, giving a
// station's merged output a verifiable identity independent of whatever
// callsign string its feed happened to advertise (spec.md §6 envelope
// callsign is operator-assigned and unverified).
package sdtprobe

import (
	"encoding/binary"
	"strings"
)

const (
	tsPacketLen = 188

	pidPAT = 0x0000
	pidSDT = 0x0011

	tablePAT          = 0x00
	tableSDT          = 0x42 // SDT actual_transport_stream
	descriptorService = 0x48 // DVB service_descriptor

	// MaxBufferBytes caps how much of a station's stream Accumulator
	// retains while waiting for PAT+SDT to appear. Both tables repeat
	// every few hundred milliseconds in any compliant stream, so this
	// comfortably covers the wait even on a slow multiplex.
	MaxBufferBytes = 256 * 1024
)

// ServiceInfo is everything ExtractServiceInfo can recover from a PAT+SDT
// pair. Fields are zero/empty when not found.
type ServiceInfo struct {
	Found bool // true if at least ServiceName was extracted

	OriginalNetworkID uint16 // from SDT section header
	TransportStreamID uint16 // from PAT or SDT section header
	ServiceID         uint16 // from SDT service loop entry

	ProviderName string // e.g. "BBC", "ESPN" — from service_descriptor
	ServiceName  string // channel's own name — from service_descriptor
	ServiceType  byte   // 0x01=TV, 0x02=Radio, 0x11=MPEG2-HD TV, 0x19=AVC HD TV, etc.
}

// ExtractServiceInfo walks a buffer of consecutive 188-byte TS packets
// (not necessarily starting on a packet boundary) and decodes the first
// PAT and SDT sections it finds.
func ExtractServiceInfo(buf []byte) ServiceInfo {
	var r ServiceInfo

	sections := map[uint16][]byte{}
	for off := syncOffset(buf); off+tsPacketLen <= len(buf); off += tsPacketLen {
		pkt := buf[off : off+tsPacketLen]
		if pkt[0] != 0x47 {
			next := syncOffset(buf[off+1:])
			off += next
			continue
		}
		pid := uint16(pkt[1]&0x1F)<<8 | uint16(pkt[2])
		if pid != pidPAT && pid != pidSDT {
			continue
		}
		if _, already := sections[pid]; already {
			continue
		}
		if payload := tsPayload(pkt); payload != nil {
			sections[pid] = payload
		}
	}

	if sec, ok := sections[pidPAT]; ok {
		r.TransportStreamID = parsePATTSID(sec)
	}
	if sec, ok := sections[pidSDT]; ok {
		parseSDTSection(sec, &r)
	}
	return r
}

func parsePATTSID(d []byte) uint16 {
	// table_id(1), section_syntax_indicator|...|section_length(2),
	// transport_stream_id(2), ...
	if len(d) < 5 || d[0] != tablePAT {
		return 0
	}
	return binary.BigEndian.Uint16(d[3:5])
}

func parseSDTSection(d []byte, r *ServiceInfo) {
	if len(d) < 3 || d[0] != tableSDT {
		return
	}
	sectionLen := int(uint16(d[1]&0x0F)<<8|uint16(d[2])) + 3
	if sectionLen > len(d) {
		sectionLen = len(d)
	}
	// SDT fixed header layout (11 bytes):
	//  [0]    table_id
	//  [1-2]  section_syntax_indicator | reserved | section_length
	//  [3-4]  transport_stream_id
	//  [5]    reserved | version_number | current_next_indicator
	//  [6]    section_number
	//  [7]    last_section_number
	//  [8-9]  original_network_id
	//  [10]   reserved_future_use
	const hdrLen = 11
	if sectionLen < hdrLen+4 {
		return
	}
	if r.TransportStreamID == 0 {
		r.TransportStreamID = binary.BigEndian.Uint16(d[3:5])
	}
	r.OriginalNetworkID = binary.BigEndian.Uint16(d[8:10])

	pos := hdrLen
	end := sectionLen - 4 // trim CRC-32
	for pos+5 <= end {
		// service_id(2), reserved|EIT_schedule|EIT_present_following(1), ...|descriptors_loop_length(2)
		svcID := binary.BigEndian.Uint16(d[pos : pos+2])
		descLoopLen := int(uint16(d[pos+3]&0x0F)<<8 | uint16(d[pos+4]))
		pos += 5
		descEnd := pos + descLoopLen
		if descEnd > end {
			descEnd = end
		}

		for pos+2 <= descEnd {
			tag := d[pos]
			dLen := int(d[pos+1])
			pos += 2
			if pos+dLen > descEnd {
				break
			}
			if tag == descriptorService && dLen >= 3 {
				prov, name, svcType, ok := parseServiceDescriptor(d[pos : pos+dLen])
				if ok && name != "" {
					r.ServiceID = svcID
					r.ServiceName = name
					r.ProviderName = prov
					r.ServiceType = svcType
					r.Found = true
					return // take the first match
				}
			}
			pos += dLen
		}
		pos = descEnd
	}
}

// parseServiceDescriptor decodes DVB service_descriptor (tag 0x48).
// Returns (providerName, serviceName, serviceType, ok).
func parseServiceDescriptor(d []byte) (string, string, byte, bool) {
	if len(d) < 3 {
		return "", "", 0, false
	}
	svcType := d[0]
	provLen := int(d[1])
	if 2+provLen+1 > len(d) {
		return "", "", 0, false
	}
	prov := decodeDVBString(d[2 : 2+provLen])
	snOff := 2 + provLen
	snLen := int(d[snOff])
	snOff++
	if snOff+snLen > len(d) {
		return "", "", 0, false
	}
	name := strings.TrimSpace(decodeDVBString(d[snOff : snOff+snLen]))
	if name == "" {
		return "", "", 0, false
	}
	return strings.TrimSpace(prov), name, svcType, true
}

// tsPayload returns the section payload from a PUSI TS packet (pointer-field
// adjusted), or nil if the packet has no PUSI or is too short.
func tsPayload(pkt []byte) []byte {
	if len(pkt) < 5 {
		return nil
	}
	if pkt[1]&0x40 == 0 {
		return nil // no payload_unit_start_indicator
	}
	start := 4
	if pkt[3]&0x20 != 0 { // adaptation field present
		afLen := int(pkt[4])
		start = 5 + afLen
	}
	if start+1 >= len(pkt) {
		return nil
	}
	ptr := int(pkt[start]) + 1
	start += ptr
	if start >= len(pkt) {
		return nil
	}
	return pkt[start:]
}

// syncOffset returns the index of the first 0x47 sync byte.
func syncOffset(buf []byte) int {
	for i, b := range buf {
		if b == 0x47 {
			return i
		}
	}
	return len(buf)
}

// decodeDVBString handles DVB character-table prefixes and returns a UTF-8
// string. Covers the vast majority of broadcast service names with Latin-1
// fallback; strips multi-byte charset prefixes (0x10 xx xx).
func decodeDVBString(d []byte) string {
	if len(d) == 0 {
		return ""
	}
	if d[0] == 0x10 {
		if len(d) >= 4 {
			d = d[3:]
		}
	} else if d[0] < 0x20 {
		d = d[1:]
	}
	r := make([]rune, 0, len(d))
	for _, b := range d {
		if b >= 0x80 && b <= 0x9F {
			continue // DVB control chars
		}
		r = append(r, rune(b))
	}
	return string(r)
}
