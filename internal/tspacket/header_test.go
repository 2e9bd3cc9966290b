package tspacket

import "testing"

// buildPacket returns a 188-byte packet with the given PID, optional PCR,
// and the remainder zero-filled. pcrBase must fit 33 bits.
func buildPacket(pid uint16, withPCR bool, pcrBase uint64, pcrExt uint16) []byte {
	p := make([]byte, PacketSize)
	p[0] = SyncByte
	p[1] = byte(pid >> 8 & 0x1F)
	p[2] = byte(pid)
	p[3] = 0x20 // adaptation field present, no payload
	if !withPCR {
		p[3] = 0x10 // payload only, no adaptation field
		return p
	}
	p[4] = 7 // adaptation field length: flags byte + 6 PCR bytes
	p[5] = 0x10 // PCR flag set
	p[6] = byte(pcrBase >> 25)
	p[7] = byte(pcrBase >> 17)
	p[8] = byte(pcrBase >> 9)
	p[9] = byte(pcrBase >> 1)
	p[10] = byte((pcrBase&0x01)<<7) | byte(pcrExt>>8&0x01)
	p[11] = byte(pcrExt)
	return p
}

func TestParse_badSync(t *testing.T) {
	p := buildPacket(256, false, 0, 0)
	p[0] = 0x00
	_, ok := Parse(p)
	if ok {
		t.Fatal("expected invalid for bad sync byte")
	}
}

func TestParse_shortBuffer(t *testing.T) {
	_, ok := Parse(make([]byte, 10))
	if ok {
		t.Fatal("expected invalid for short buffer")
	}
}

func TestParse_noAdaptationField(t *testing.T) {
	p := buildPacket(512, false, 0, 0)
	hdr, ok := Parse(p)
	if !ok {
		t.Fatal("expected valid")
	}
	if hdr.PID != 512 {
		t.Errorf("PID = %d, want 512", hdr.PID)
	}
	if hdr.PCRFlag {
		t.Error("PCRFlag should be false")
	}
	if hdr.PayloadOffset != 4 {
		t.Errorf("PayloadOffset = %d, want 4", hdr.PayloadOffset)
	}
}

func TestParse_withPCR(t *testing.T) {
	p := buildPacket(256, true, 100, 0)
	hdr, ok := Parse(p)
	if !ok {
		t.Fatal("expected valid")
	}
	if !hdr.PCRFlag {
		t.Fatal("expected PCRFlag set")
	}
	if hdr.PCRBase != 100 {
		t.Errorf("PCRBase = %d, want 100", hdr.PCRBase)
	}
	if hdr.PayloadOffset != 4+1+7 {
		t.Errorf("PayloadOffset = %d, want %d", hdr.PayloadOffset, 4+1+7)
	}
}

func TestParse_emptyAdaptationField(t *testing.T) {
	p := buildPacket(256, false, 0, 0)
	p[3] = 0x20 // adaptation field present
	p[4] = 0    // length 0: valid, collapses to "no payload"
	hdr, ok := Parse(p)
	if !ok {
		t.Fatal("expected valid for zero-length adaptation field")
	}
	if hdr.AdaptationFieldFlag {
		t.Error("AdaptationFieldFlag should collapse to false for zero length")
	}
}

func TestParse_adaptationFieldTooLong(t *testing.T) {
	p := buildPacket(256, false, 0, 0)
	p[3] = 0x20
	p[4] = 184 // > 183 is invalid
	_, ok := Parse(p)
	if ok {
		t.Fatal("expected invalid for adaptation field length > 183")
	}
}

func TestParse_pcrExtensionOutOfRange(t *testing.T) {
	p := buildPacket(256, true, 100, 300) // ext >= 300 is invalid
	_, ok := Parse(p)
	if ok {
		t.Fatal("expected invalid for pcr_extension >= 300")
	}
}

func TestParse_maxPCRBase(t *testing.T) {
	const max33 = uint64(1)<<33 - 1
	p := buildPacket(256, true, max33, 299)
	hdr, ok := Parse(p)
	if !ok {
		t.Fatal("expected valid")
	}
	if hdr.PCRBase != max33 {
		t.Errorf("PCRBase = %d, want %d", hdr.PCRBase, max33)
	}
	if hdr.PCRExtension != 299 {
		t.Errorf("PCRExtension = %d, want 299", hdr.PCRExtension)
	}
}
