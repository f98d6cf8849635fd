package ufi

import "testing"

func cdb(bytes ...byte) []byte {
	out := make([]byte, 16)
	copy(out, bytes)
	return out
}

func TestParseTestUnitReadyAndRezero(t *testing.T) {
	if cmd := Parse(cdb(opTestUnitReady)); cmd.Op != KindTestUnitReady {
		t.Fatalf("TestUnitReady Op = %v", cmd.Op)
	}
	if cmd := Parse(cdb(opRezeroUnit)); cmd.Op != KindRezeroUnit {
		t.Fatalf("RezeroUnit Op = %v", cmd.Op)
	}
}

func TestParseStartStopUnit(t *testing.T) {
	cmd := Parse(cdb(opStartStopUnit, 0, 0, 0, 0x01))
	if cmd.Op != KindStartStopUnit || !cmd.Start || cmd.Eject {
		t.Fatalf("start(1) parsed = %+v", cmd)
	}
	cmd = Parse(cdb(opStartStopUnit, 0, 0, 0, 0x02))
	if cmd.Op != KindStartStopUnit || cmd.Start || !cmd.Eject {
		t.Fatalf("eject(2) parsed = %+v", cmd)
	}
}

func TestParseRead10AndWrite10(t *testing.T) {
	cmd := Parse(cdb(opRead10, 0, 0x00, 0x00, 0x00, 0x05, 0, 0x00, 0x04))
	if cmd.Op != KindRead || cmd.LBA != 5 || cmd.Len != 4 {
		t.Fatalf("parsed Read(10) = %+v", cmd)
	}

	cmd = Parse(cdb(opWrite10, 0, 0x00, 0x00, 0x00, 0x09, 0, 0x00, 0x01))
	if cmd.Op != KindWrite || cmd.LBA != 9 || cmd.Len != 1 {
		t.Fatalf("parsed Write(10) = %+v", cmd)
	}
}

func TestParseWrite12(t *testing.T) {
	cb := cdb(opWrite12)
	cb[2], cb[3], cb[4], cb[5] = 0, 0, 0, 0x0A
	cb[6], cb[7], cb[8], cb[9] = 0, 0, 0, 0x03
	cmd := Parse(cb)
	if cmd.Op != KindWrite || cmd.LBA != 0x0A || cmd.Len != 0x03 {
		t.Fatalf("parsed Write(12) = %+v", cmd)
	}
}

func TestParseRead12(t *testing.T) {
	cb := cdb(opRead12)
	cb[2], cb[3], cb[4], cb[5] = 0, 0, 0, 0x0C
	cb[6], cb[7], cb[8], cb[9] = 0, 0, 0, 0x07
	cmd := Parse(cb)
	if cmd.Op != KindRead12 || cmd.LBA != 0x0C || cmd.Len != 0x07 {
		t.Fatalf("parsed Read(12) = %+v", cmd)
	}
}

func TestParsePreventAllowMediumRemoval(t *testing.T) {
	cmd := Parse(cdb(opPreventAllowMediumRemoval, 0, 0, 0, 0x01))
	if cmd.Op != KindPreventAllowMediumRemoval || !cmd.Prevent {
		t.Fatalf("parsed Prevent(1) = %+v", cmd)
	}
	cmd = Parse(cdb(opPreventAllowMediumRemoval, 0, 0, 0, 0x00))
	if cmd.Op != KindPreventAllowMediumRemoval || cmd.Prevent {
		t.Fatalf("parsed Prevent(0) = %+v", cmd)
	}
}

func TestParseSeek10(t *testing.T) {
	cb := cdb(opSeek10)
	cb[2], cb[3], cb[4], cb[5] = 0, 0, 0x01, 0x00
	cmd := Parse(cb)
	if cmd.Op != KindSeek10 || cmd.LBA != 0x0100 {
		t.Fatalf("parsed Seek(10) = %+v", cmd)
	}
}

func TestParseSendDiagnostic(t *testing.T) {
	cmd := Parse(cdb(opSendDiagnostic, 1<<2))
	if cmd.Op != KindSendDiagnostic || !cmd.Default {
		t.Fatalf("parsed SendDiagnostic = %+v", cmd)
	}
}

func TestParseUnknownOpcode(t *testing.T) {
	if cmd := Parse(cdb(0xEE)); cmd.Op != Unknown {
		t.Fatalf("Op = %v, want Unknown", cmd.Op)
	}
	if cmd := Parse(nil); cmd.Op != Unknown {
		t.Fatalf("Parse(nil) Op = %v, want Unknown", cmd.Op)
	}
}

func TestLBAToCHS(t *testing.T) {
	// LBA 0 is cylinder 0, head 0, sector 1 (sectors are 1-indexed).
	cyl, head, sector := LBAToCHS(0)
	if cyl != 0 || head != 0 || sector != 1 {
		t.Fatalf("LBAToCHS(0) = (%d,%d,%d)", cyl, head, sector)
	}

	// One full track (63 sectors) advances exactly one head.
	cyl, head, sector = LBAToCHS(sectorsPerTrack)
	if cyl != 0 || head != 1 || sector != 1 {
		t.Fatalf("LBAToCHS(%d) = (%d,%d,%d)", sectorsPerTrack, cyl, head, sector)
	}

	// A full cylinder (all heads) advances the cylinder.
	cyl, head, sector = LBAToCHS(sectorsPerTrack * headsPerCylinder)
	if cyl != 1 || head != 0 || sector != 1 {
		t.Fatalf("LBAToCHS(%d) = (%d,%d,%d)", sectorsPerTrack*headsPerCylinder, cyl, head, sector)
	}
}
