package msc

import (
	"bytes"
	"testing"
)

// fakeDataPhase is a minimal dataPhase: WriteData appends to toHost,
// ReadData drains from wrote, and the terminal calls just record which
// one fired.
type fakeDataPhase struct {
	toHost []byte // bytes the command under test has sent via WriteData
	wrote  []byte // bytes still to be handed out by ReadData (a WRITE)

	passed, failed, failedPhase bool
}

func (f *fakeDataPhase) WriteData(src []byte) (int, error) {
	f.toHost = append(f.toHost, src...)
	return len(src), nil
}

func (f *fakeDataPhase) ReadData(dst []byte) (int, error) {
	n := copy(dst, f.wrote)
	f.wrote = f.wrote[n:]
	return n, nil
}

func (f *fakeDataPhase) Pass()      { f.passed = true }
func (f *fakeDataPhase) Fail()      { f.failed = true }
func (f *fakeDataPhase) FailPhase() { f.failedPhase = true }

func newTestCore(t *testing.T) (*core, *MemoryStorage) {
	t.Helper()
	storage := NewMemoryStorage(4096, 512)
	c := newCore(storage, "softusb", "Test Disk", 0, false)
	return c, storage
}

func TestStepTransferReadToHost(t *testing.T) {
	c, storage := newTestCore(t)
	block := bytes.Repeat([]byte{0x42}, 512)
	if _, err := storage.Write(0, 1, block); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	c.beginRead(0, 1)
	cmd := &fakeDataPhase{}
	c.stepTransfer(cmd)

	if !cmd.passed {
		t.Fatalf("Pass not called after a single-block READ")
	}
	if !bytes.Equal(cmd.toHost, block) {
		t.Fatalf("data sent to host = %x, want %x", cmd.toHost[:4], block[:4])
	}
}

func TestStepTransferReadStorageErrorFails(t *testing.T) {
	c, _ := newTestCore(t)
	// LBA far beyond the backing store's 8 blocks: storage.Read reports
	// io.EOF, which must fail the command and latch a medium-error sense.
	c.beginRead(100, 1)
	cmd := &fakeDataPhase{}
	c.stepTransfer(cmd)

	if !cmd.failed {
		t.Fatalf("Fail not called after a storage read error")
	}
	if c.senseKey != SenseMediumError {
		t.Fatalf("senseKey = %#x, want SenseMediumError", c.senseKey)
	}
}

func TestStepTransferWriteFromHost(t *testing.T) {
	c, storage := newTestCore(t)
	payload := bytes.Repeat([]byte{0x99}, 512)

	c.beginWrite(1, 1)
	cmd := &fakeDataPhase{wrote: append([]byte(nil), payload...)}
	c.stepTransfer(cmd)

	if !cmd.passed {
		t.Fatalf("Pass not called after a single-block WRITE")
	}

	out := make([]byte, 512)
	if _, err := storage.Read(1, 1, out); err != nil || !bytes.Equal(out, payload) {
		t.Fatalf("storage not updated: err=%v out=%x", err, out[:4])
	}
}

func TestStepTransferWriteStorageErrorFails(t *testing.T) {
	c, storage := newTestCore(t)
	storage.SetReadOnly(true)

	c.beginWrite(0, 1)
	cmd := &fakeDataPhase{wrote: bytes.Repeat([]byte{1}, 512)}
	c.stepTransfer(cmd)

	if !cmd.failed {
		t.Fatalf("Fail not called after a storage write error")
	}
	if c.senseKey != SenseMediumError {
		t.Fatalf("senseKey = %#x, want SenseMediumError", c.senseKey)
	}
}

func TestStepTransferNoopWhenIdle(t *testing.T) {
	c, _ := newTestCore(t)
	cmd := &fakeDataPhase{}
	c.stepTransfer(cmd) // no beginRead/beginWrite called
	if cmd.passed || cmd.failed || cmd.failedPhase {
		t.Fatalf("stepTransfer acted on no pending transfer")
	}
}

func TestCheckLUN(t *testing.T) {
	c, _ := newTestCore(t)
	c.SetMaxLUN(2)

	if !c.checkLUN(2) {
		t.Fatalf("checkLUN(2) = false, want true with maxLUN=2")
	}
	if c.checkLUN(3) {
		t.Fatalf("checkLUN(3) = true, want false with maxLUN=2")
	}
	if c.senseKey != SenseIllegalRequest {
		t.Fatalf("senseKey after out-of-range LUN = %#x, want SenseIllegalRequest", c.senseKey)
	}
}

func TestNewCoreSeedsNoSense(t *testing.T) {
	c, _ := newTestCore(t)
	if c.senseKey != SenseNoSense || c.asc != ASCNoAdditionalInfo {
		t.Fatalf("initial sense = %#x/%#x, want no-sense", c.senseKey, c.asc)
	}
}
