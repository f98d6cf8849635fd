package subclass

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ardnew/softusb/bbb"
	"github.com/ardnew/softusb/pkg"
)

// fakeBus mirrors the one in package bbb's own tests: OUT packets come
// from a pre-loaded queue, IN packets land in a log for inspection.
type fakeBus struct {
	maxPacketSize uint16
	outQueue      [][]byte
	inLog         [][]byte
}

func (b *fakeBus) ReadPacket(buf []byte) (int, error) {
	if len(b.outQueue) == 0 {
		return 0, pkg.ErrNAK
	}
	pkt := b.outQueue[0]
	b.outQueue = b.outQueue[1:]
	return copy(buf, pkt), nil
}

func (b *fakeBus) WritePacket(buf []byte) (int, error) {
	b.inLog = append(b.inLog, append([]byte(nil), buf...))
	return len(buf), nil
}

func (b *fakeBus) MaxPacketSize() uint16 { return b.maxPacketSize }
func (b *fakeBus) StallIn()              {}
func (b *fakeBus) StallOut()             {}
func (b *fakeBus) UnstallIn()            {}
func (b *fakeBus) UnstallOut()           {}

func (b *fakeBus) inBytes() []byte {
	var out []byte
	for _, p := range b.inLog {
		out = append(out, p...)
	}
	return out
}

func buildCBW(tag, dataLen uint32, dirIn bool, cb []byte) []byte {
	out := make([]byte, bbb.CBWLength)
	binary.LittleEndian.PutUint32(out[0:4], bbb.CBWSignature)
	binary.LittleEndian.PutUint32(out[4:8], tag)
	binary.LittleEndian.PutUint32(out[8:12], dataLen)
	if dirIn {
		out[12] = 0x80
	}
	out[14] = uint8(len(cb))
	copy(out[15:31], cb)
	return out
}

// a trivial "opcode" parser: the command kind is just the CDB's first
// byte, letting tests assert on it directly without a real subclass.
func echoOpcode(cb []byte) uint8 {
	if len(cb) == 0 {
		return 0xFF
	}
	return cb[0]
}

// Poll must parse exactly one command per fully-received CBW and hand
// it, together with the owning class value, to the callback.
func TestPollDispatchesOneCommand(t *testing.T) {
	bus := &fakeBus{maxPacketSize: 64}
	tr, err := bbb.New(bus, make([]byte, 256), 0)
	if err != nil {
		t.Fatalf("bbb.New: %v", err)
	}
	bus.outQueue = append(bus.outQueue, buildCBW(0x10, 0, false, []byte{0x00}))

	type class struct{ name string }
	owner := class{name: "disk0"}

	var calls int
	var seenKind uint8
	var seenClass class
	err = Poll(tr, owner, echoOpcode, func(cmd Command[uint8, class]) {
		calls++
		seenKind = cmd.Kind
		seenClass = cmd.Class
		cmd.Pass()
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if calls != 1 {
		t.Fatalf("callback invoked %d times, want 1", calls)
	}
	if seenKind != 0x00 {
		t.Fatalf("Kind = %#x, want 0x00", seenKind)
	}
	if seenClass != owner {
		t.Fatalf("Class = %+v, want %+v", seenClass, owner)
	}
}

// Pass/Fail/FailPhase must translate to the matching bbb status code.
func TestCommandTerminalCalls(t *testing.T) {
	for _, tc := range []struct {
		name   string
		invoke func(*Command[uint8, struct{}])
		status uint8
	}{
		{"pass", func(c *Command[uint8, struct{}]) { c.Pass() }, bbb.StatusPassed},
		{"fail", func(c *Command[uint8, struct{}]) { c.Fail() }, bbb.StatusFailed},
		{"failphase", func(c *Command[uint8, struct{}]) { c.FailPhase() }, bbb.StatusPhaseError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got uint8
			var latched bool
			tr := &fakeTransport{setStatus: func(s uint8) { got, latched = s, true }}
			cmd := New[uint8, struct{}](struct{}{}, 0, 0, tr)
			tc.invoke(&cmd)
			if !latched || got != tc.status {
				t.Fatalf("status = %d, latched=%v, want %d", got, latched, tc.status)
			}
		})
	}
}

// fakeTransport lets the Command-level tests isolate SetStatus/ReadData/
// WriteData behavior from a real Bulk-Only Transport.
type fakeTransport struct {
	setStatus func(uint8)
	readData  func([]byte) (int, error)
	writeData func([]byte) (int, error)
	writeAll  func([]byte) error
}

func (f *fakeTransport) ReadData(dst []byte) (int, error) {
	if f.readData != nil {
		return f.readData(dst)
	}
	return 0, nil
}

func (f *fakeTransport) WriteData(src []byte) (int, error) {
	if f.writeData != nil {
		return f.writeData(src)
	}
	return 0, nil
}

func (f *fakeTransport) TryWriteDataAll(src []byte) error {
	if f.writeAll != nil {
		return f.writeAll(src)
	}
	return nil
}

func (f *fakeTransport) SetStatus(status uint8) {
	if f.setStatus != nil {
		f.setStatus(status)
	}
}

func TestCommandReadWriteDataForwarding(t *testing.T) {
	wantIn := []byte{1, 2, 3}
	var gotOut []byte
	tr := &fakeTransport{
		readData: func(dst []byte) (int, error) { return copy(dst, wantIn), nil },
		writeData: func(src []byte) (int, error) {
			gotOut = append([]byte(nil), src...)
			return len(src), nil
		},
	}
	cmd := New[uint8, struct{}](struct{}{}, 0, 0, tr)

	dst := make([]byte, 3)
	n, err := cmd.ReadData(dst)
	if err != nil || n != 3 || !bytes.Equal(dst, wantIn) {
		t.Fatalf("ReadData = %d, %v, dst=%v", n, err, dst)
	}

	n, err = cmd.WriteData([]byte{9, 8, 7})
	if err != nil || n != 3 || !bytes.Equal(gotOut, []byte{9, 8, 7}) {
		t.Fatalf("WriteData = %d, %v, got=%v", n, err, gotOut)
	}
}

func TestIgnoreProgress(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{pkg.ErrNAK, true},
		{bbb.ErrIOBufferOverflow, true},
		{bbb.ErrInvalidState, true},
		{bbb.ErrFullPacketExpected, true},
		{errors.New("bus gone"), false},
	}
	for _, c := range cases {
		if got := IgnoreProgress(c.err); got != c.want {
			t.Fatalf("IgnoreProgress(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
