package scsi

import "testing"

func cdb(bytes ...byte) []byte {
	out := make([]byte, 16)
	copy(out, bytes)
	return out
}

func TestParseTestUnitReady(t *testing.T) {
	cmd := Parse(cdb(opTestUnitReady))
	if cmd.Op != KindTestUnitReady {
		t.Fatalf("Op = %v, want KindTestUnitReady", cmd.Op)
	}
}

func TestParseInquiry(t *testing.T) {
	cmd := Parse(cdb(opInquiry, 0x01, 0x83, 0x01, 0x00))
	if cmd.Op != KindInquiry || !cmd.EVPD || cmd.PageCode != 0x83 || cmd.AllocLen != 0x0100 {
		t.Fatalf("parsed Inquiry = %+v", cmd)
	}
}

func TestParseRead10(t *testing.T) {
	// LBA = 0x00010203, transfer length = 0x0020 blocks.
	cmd := Parse(cdb(opRead10, 0, 0x00, 0x01, 0x02, 0x03, 0, 0x00, 0x20))
	if cmd.Op != KindRead || cmd.LBA != 0x00010203 || cmd.Len != 0x20 {
		t.Fatalf("parsed Read(10) = %+v", cmd)
	}
}

func TestParseWrite10(t *testing.T) {
	cmd := Parse(cdb(opWrite10, 0, 0x00, 0x00, 0x00, 0x10, 0, 0x00, 0x01))
	if cmd.Op != KindWrite || cmd.LBA != 0x10 || cmd.Len != 1 {
		t.Fatalf("parsed Write(10) = %+v", cmd)
	}
}

func TestParseRead16(t *testing.T) {
	cb := cdb(opRead16)
	cb[2], cb[3], cb[4], cb[5] = 0, 0, 0, 0
	cb[6], cb[7], cb[8], cb[9] = 0, 0, 0, 7
	cb[10], cb[11], cb[12], cb[13] = 0, 0, 0, 2
	cmd := Parse(cb)
	if cmd.Op != KindRead || cmd.LBA != 7 || cmd.Len != 2 {
		t.Fatalf("parsed Read(16) = %+v", cmd)
	}
}

func TestParseReadCapacity10And16(t *testing.T) {
	if cmd := Parse(cdb(opReadCapacity10)); cmd.Op != KindReadCapacity10 {
		t.Fatalf("ReadCapacity10 Op = %v", cmd.Op)
	}
	cb := cdb(opReadCapacity16)
	cb[10], cb[11], cb[12], cb[13] = 0, 0, 0x01, 0x00
	if cmd := Parse(cb); cmd.Op != KindReadCapacity16 || cmd.AllocLen != 0x0100 {
		t.Fatalf("parsed ReadCapacity16 = %+v", cmd)
	}
}

func TestParseModeSense6And10(t *testing.T) {
	cb := cdb(opModeSense6, 0x08, 0b01_000011, 0x05, 0x20)
	cmd := Parse(cb)
	if cmd.Op != KindModeSense6 || !cmd.DBD || cmd.PageControl != PageControlChangeable ||
		cmd.PageCode != 0x03 || cmd.SubpageCode != 0x05 || cmd.AllocLen != 0x20 {
		t.Fatalf("parsed ModeSense6 = %+v", cmd)
	}

	cb = cdb(opModeSense10, 0x08, 0b10_000001, 0x02, 0, 0, 0, 0x01, 0x00)
	cmd = Parse(cb)
	if cmd.Op != KindModeSense10 || cmd.PageControl != PageControlDefault || cmd.AllocLen != 0x0100 {
		t.Fatalf("parsed ModeSense10 = %+v", cmd)
	}
}

func TestParseRequestSense(t *testing.T) {
	cmd := Parse(cdb(opRequestSense, 0x01, 0, 0, 0xFC))
	if cmd.Op != KindRequestSense || !cmd.Desc || cmd.AllocLen != 0xFC {
		t.Fatalf("parsed RequestSense = %+v", cmd)
	}
}

func TestParseUnknownOpcode(t *testing.T) {
	cmd := Parse(cdb(0xFF))
	if cmd.Op != Unknown {
		t.Fatalf("Op = %v, want Unknown", cmd.Op)
	}
	if cmd := Parse(nil); cmd.Op != Unknown {
		t.Fatalf("Parse(nil) Op = %v, want Unknown", cmd.Op)
	}
}
