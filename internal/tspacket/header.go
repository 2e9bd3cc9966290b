// Package tspacket decodes the subset of the MPEG-2 Transport Stream
// adaptation-field header that the merger needs: PID, PCR presence and the
// 33-bit PCR base. It is a pure function over a 188-byte buffer — no
// allocation, no state.
package tspacket

const (
	// PacketSize is the fixed length of one MPEG-2 TS packet.
	PacketSize = 188

	// SyncByte is the required first byte of every TS packet.
	SyncByte = 0x47

	// NullPID marks stuffing/padding packets.
	NullPID = 0x1FFF
)

// Header holds the fields of a TS packet the merger consumes plus a few
// extra ones useful for diagnostics. Only PID and PCRBase (when PCRFlag is
// set) are read by the merger core.
type Header struct {
	PID                 uint16
	PayloadUnitStart    bool
	AdaptationFieldFlag bool
	PayloadFlag         bool
	ContinuityCounter   uint8
	AdaptationFieldLen  uint8
	PCRFlag             bool
	PCRBase             uint64
	PCRExtension        uint16
	PayloadOffset       uint8
}

// Parse decodes a 188-byte TS packet. ok is false if the packet is
// structurally invalid (bad sync byte, adaptation field longer than 183
// bytes or too short for the PCR it flags, or PCR extension out of range);
// in that case hdr is the zero value.
//
// Parse never allocates and never panics: a buffer shorter than PacketSize
// is treated as invalid.
func Parse(data []byte) (hdr Header, ok bool) {
	if len(data) < PacketSize || data[0] != SyncByte {
		return Header{}, false
	}

	hdr.PID = (uint16(data[1]&0x1F) << 8) | uint16(data[2])
	hdr.PayloadUnitStart = data[1]&0x40 != 0
	afc := (data[3] >> 4) & 0x03
	hdr.AdaptationFieldFlag = afc == 2 || afc == 3
	hdr.PayloadFlag = afc == 1 || afc == 3
	hdr.ContinuityCounter = data[3] & 0x0F
	hdr.PayloadOffset = 4

	if !hdr.AdaptationFieldFlag {
		return hdr, true
	}

	alen := data[hdr.PayloadOffset]
	hdr.AdaptationFieldLen = alen
	if alen == 0 {
		// An empty adaptation field is valid; it carries no flags or PCR.
		hdr.AdaptationFieldFlag = false
		hdr.PayloadOffset++
		return hdr, true
	}
	if alen > 183 {
		return Header{}, false
	}

	flagsOff := int(hdr.PayloadOffset) + 1
	if flagsOff >= len(data) {
		return Header{}, false
	}
	flags := data[flagsOff]
	hdr.PCRFlag = flags&0x10 != 0

	if hdr.PCRFlag {
		if alen < 7 {
			// The flags byte plus 6 PCR bytes overrun the declared length.
			return Header{}, false
		}
		pcrOff := flagsOff + 1
		if pcrOff+6 > len(data) {
			return Header{}, false
		}
		base, ext := decodePCR(data[pcrOff : pcrOff+6])
		if ext >= 300 {
			// The 27MHz extension counter never reaches 300.
			return Header{}, false
		}
		hdr.PCRBase = base
		hdr.PCRExtension = ext
	}

	hdr.PayloadOffset += 1 + alen
	return hdr, true
}

// decodePCR reads the 33-bit PCR base and 9-bit extension from a 6-byte
// adaptation-field PCR field, per ITU-T H.222.0 §2.4.3.5.
func decodePCR(b []byte) (base uint64, ext uint16) {
	base = (uint64(b[0]) << 25) |
		(uint64(b[1]) << 17) |
		(uint64(b[2]) << 9) |
		(uint64(b[3]) << 1) |
		(uint64(b[4]) >> 7)
	ext = (uint16(b[4]&0x01) << 8) | uint16(b[5])
	return base, ext
}
