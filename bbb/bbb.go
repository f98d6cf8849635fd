// Package bbb implements the USB Mass Storage Class Bulk-Only Transport
// (subclass protocol 0x50): the Command Block Wrapper / Command Status
// Wrapper handshake that carries SCSI or UFI commands over a pair of bulk
// endpoints. The transport is driven entirely by repeated, non-blocking
// calls into a Bus collaborator; it never blocks, allocates, or spawns
// background work.
package bbb

import (
	"encoding/binary"
	"errors"

	"github.com/ardnew/softusb/pkg"
)

// Transport-local error sentinels. pkg.ErrNAK doubles as the would-block
// signal returned by a Bus when a packet isn't ready yet, matching the
// rest of the stack's endpoint error vocabulary.
var (
	// ErrIOBufferOverflow indicates the working buffer has no room for
	// the requested write even after compaction.
	ErrIOBufferOverflow = errors.New("bbb: io buffer overflow")

	// ErrInvalidMaxLUN indicates a max LUN value above 0x0F.
	ErrInvalidMaxLUN = errors.New("bbb: invalid max LUN")

	// ErrInvalidState indicates a data operation was attempted outside
	// the matching data-transfer state, or after a status was latched.
	ErrInvalidState = errors.New("bbb: invalid transport state")

	// ErrFullPacketExpected signals the poll loop that the user must
	// supply more bytes before a short packet can legally be sent. It
	// never escapes the transport to an application directly.
	ErrFullPacketExpected = errors.New("bbb: full packet expected")
)

// State is a phase of the Bulk-Only Transport state machine.
type State uint8

const (
	StateIdle State = iota
	StateCommandTransfer
	StateDataTransferToHost
	StateDataTransferFromHost
	StateDataTransferNoData
	StateStatusTransfer
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCommandTransfer:
		return "command-transfer"
	case StateDataTransferToHost:
		return "data-to-host"
	case StateDataTransferFromHost:
		return "data-from-host"
	case StateDataTransferNoData:
		return "data-no-data"
	case StateStatusTransfer:
		return "status-transfer"
	default:
		return "unknown"
	}
}

// Direction is the data-phase direction named by a CBW.
type Direction uint8

const (
	// DirectionNone means the command carries no data phase at all
	// (data_transfer_len == 0).
	DirectionNone Direction = iota
	DirectionOut
	DirectionIn
)

// Wire-format constants (USB Mass Storage Class Bulk-Only Transport spec).
const (
	CBWSignature = 0x43425355 // "USBC"
	CBWLength    = 31
	CSWSignature = 0x53425355 // "USBS"
	CSWLength    = 13

	cbwFlagDataIn = 0x80

	// Command status values carried in a CSW.
	StatusPassed     = 0x00
	StatusFailed     = 0x01
	StatusPhaseError = 0x02

	requestGetMaxLUN     = 0xFE
	requestBulkOnlyReset = 0xFF
)

// CommandBlockWrapper is the decoded form of a 31-byte CBW. DataTransferLen
// is the live residue counter: the transport decrements it as bytes cross
// the wire, and its value at end-of-transfer becomes the CSW residue.
type CommandBlockWrapper struct {
	Tag             uint32
	DataTransferLen uint32
	Direction       Direction
	LUN             uint8
	cbLen           uint8
	cb              [16]byte
}

// Bytes returns the command block truncated to its declared length (1..16).
func (c *CommandBlockWrapper) Bytes() []byte {
	return c.cb[:c.cbLen]
}

// parseCBW decodes the 27 bytes of a little-endian CBW that follow the
// 4-byte signature, which the caller has already checked and stripped, so
// every offset here is the wire offset minus 4. It reports false if the
// command length is outside [1,16].
func parseCBW(data []byte, out *CommandBlockWrapper) bool {
	cbLen := data[10]
	if cbLen < 1 || cbLen > 16 {
		return false
	}
	dataLen := binary.LittleEndian.Uint32(data[4:8])
	out.Tag = binary.LittleEndian.Uint32(data[0:4])
	out.DataTransferLen = dataLen
	switch {
	case dataLen == 0:
		out.Direction = DirectionNone
	case data[8]&cbwFlagDataIn != 0:
		out.Direction = DirectionIn
	default:
		out.Direction = DirectionOut
	}
	out.LUN = data[9] & 0x0F
	out.cbLen = cbLen
	copy(out.cb[:], data[11:27])
	return true
}

// Bus is the non-blocking collaborator the transport drives. Every method
// must return immediately: ReadPacket/WritePacket report pkg.ErrNAK when
// no progress can be made yet instead of waiting. An implementation backs
// a single bulk IN/OUT endpoint pair of a fixed, negotiated packet size.
type Bus interface {
	// ReadPacket copies at most len(buf) bytes already received on the
	// OUT endpoint into buf, returning the count. It returns
	// (0, pkg.ErrNAK) if nothing has arrived yet.
	ReadPacket(buf []byte) (int, error)

	// WritePacket submits buf for transmission on the IN endpoint. It
	// returns (0, pkg.ErrNAK) if the endpoint is still busy with a
	// previous packet.
	WritePacket(buf []byte) (int, error)

	// MaxPacketSize returns the negotiated maximum packet size, the
	// same for both endpoints.
	MaxPacketSize() uint16

	StallIn()
	StallOut()
	UnstallIn()
	UnstallOut()
}

// BulkOnly drives the Bulk-Only Transport state machine over a Bus. It
// holds no goroutines or timers; all progress happens inside Read, Write,
// ReadData, WriteData and TryWriteDataAll calls.
type BulkOnly struct {
	bus       Bus
	buf       *Buffer
	state     State
	cbw       CommandBlockWrapper
	hasStatus bool
	status    uint8
	maxLUN    uint8

	cbwScratch [CBWLength]byte
	cswScratch [CSWLength]byte
}

// New creates a Bulk-Only Transport over bus using storage as the working
// IO buffer. storage must be at least CBWLength bytes and at least one
// max-size packet. maxLUN must be at most 0x0F.
func New(bus Bus, storage []byte, maxLUN uint8) (*BulkOnly, error) {
	if maxLUN > 0x0F {
		return nil, ErrInvalidMaxLUN
	}
	packetSize := int(bus.MaxPacketSize())
	if len(storage) < CBWLength || len(storage) < packetSize {
		return nil, pkg.ErrBufferTooSmall
	}
	return &BulkOnly{
		bus:    bus,
		buf:    NewBuffer(storage),
		state:  StateIdle,
		maxLUN: maxLUN,
	}, nil
}

// Read drives the OUT direction by a single packet. In Idle or
// CommandTransfer it accumulates CBW bytes and parses once 31 are
// available; in DataTransferFromHost it pulls one packet of payload and
// decrements the residue. It is a no-op, returning nil, in any other
// state.
func (t *BulkOnly) Read() error {
	switch t.state {
	case StateIdle, StateCommandTransfer:
		return t.handleReadCBW()
	case StateDataTransferFromHost:
		return t.handleReadFromHost()
	default:
		return nil
	}
}

// Write drives the IN direction by a single packet. In StatusTransfer it
// sends CSW bytes until the buffer drains, then enters Idle. In
// DataTransferToHost it sends one packet of payload subject to the
// full-packet rule. In DataTransferNoData it only checks whether the
// transfer can end. It is a no-op, returning nil, in any other state.
func (t *BulkOnly) Write() error {
	switch t.state {
	case StateStatusTransfer:
		return t.handleWriteCSW()
	case StateDataTransferToHost:
		return t.handleWriteToHost()
	case StateDataTransferNoData:
		return t.checkEndDataTransfer()
	default:
		return nil
	}
}

func (t *BulkOnly) handleReadCBW() error {
	if _, err := t.readPacket(); err != nil {
		return err
	}
	if t.buf.AvailableRead() < CBWLength {
		t.state = StateCommandTransfer
		return nil
	}

	t.buf.Read(func(b []byte) int {
		copy(t.cbwScratch[:], b[:CBWLength])
		return CBWLength
	})

	if binary.LittleEndian.Uint32(t.cbwScratch[0:4]) != CBWSignature {
		t.rejectInvalidCBW()
		return nil
	}

	var cbw CommandBlockWrapper
	if !parseCBW(t.cbwScratch[4:], &cbw) {
		t.rejectInvalidCBW()
		return nil
	}

	pkg.LogDebug(pkg.ComponentDevice, "CBW received",
		"tag", cbw.Tag, "len", cbw.DataTransferLen, "lun", cbw.LUN, "opcode", cbw.cb[0])

	t.startDataTransfer(cbw)
	return nil
}

// rejectInvalidCBW stalls both endpoints and drops straight back to
// Idle. This is a local state reset rather than the public Reset — the
// endpoints stay stalled until the host recovers via mass-storage
// reset; calling the public Reset here would immediately undo the
// stall it just asserted.
func (t *BulkOnly) rejectInvalidCBW() {
	pkg.LogWarn(pkg.ComponentDevice, "rejecting invalid CBW, stalling both endpoints")
	t.bus.StallIn()
	t.bus.StallOut()
	t.enterIdle()
}

func (t *BulkOnly) handleReadFromHost() error {
	if !t.hasStatus {
		n, err := t.readPacket()
		if err != nil {
			return err
		}
		t.decrementResidue(uint32(n))
	}
	return t.checkEndDataTransfer()
}

func (t *BulkOnly) handleWriteToHost() error {
	maxPacketSize := uint32(t.bus.MaxPacketSize())
	fullPacketExpected := t.cbw.DataTransferLen >= maxPacketSize && !t.hasStatus
	fullPacket := uint32(t.buf.AvailableRead()) >= maxPacketSize
	if !(fullPacket || !fullPacketExpected) {
		return ErrFullPacketExpected
	}

	if t.buf.AvailableRead() > 0 {
		n, err := t.writePacket()
		if err != nil {
			return err
		}
		t.decrementResidue(uint32(n))
	}
	return t.checkEndDataTransfer()
}

func (t *BulkOnly) handleWriteCSW() error {
	if _, err := t.writePacket(); err != nil {
		return err
	}
	if t.buf.AvailableRead() == 0 {
		t.enterIdle()
	}
	return nil
}

func (t *BulkOnly) checkEndDataTransfer() error {
	if !t.hasStatus {
		return nil
	}
	switch t.state {
	case StateDataTransferNoData:
		return t.endDataTransfer()
	case StateDataTransferFromHost, StateDataTransferToHost:
		if t.buf.AvailableRead() == 0 {
			return t.endDataTransfer()
		}
	}
	return nil
}

// endDataTransfer stalls the active data endpoint if the host's data
// transfer length wasn't fully satisfied, then builds and enqueues the
// CSW, entering StatusTransfer and attempting an immediate flush. The
// flush is best-effort: pkg.ErrNAK here just means the CSW goes out on
// the next Write call instead of this one.
func (t *BulkOnly) endDataTransfer() error {
	if t.cbw.DataTransferLen > 0 {
		switch t.state {
		case StateDataTransferToHost:
			t.bus.StallIn()
		case StateDataTransferFromHost:
			t.bus.StallOut()
		}
	}

	t.buf.Clean()
	t.buf.Write(t.buildCSW())
	t.state = StateStatusTransfer

	if err := t.Write(); err != nil && !errors.Is(err, pkg.ErrNAK) {
		return err
	}
	return nil
}

func (t *BulkOnly) buildCSW() []byte {
	binary.LittleEndian.PutUint32(t.cswScratch[0:4], CSWSignature)
	binary.LittleEndian.PutUint32(t.cswScratch[4:8], t.cbw.Tag)
	binary.LittleEndian.PutUint32(t.cswScratch[8:12], t.cbw.DataTransferLen)
	t.cswScratch[12] = t.status
	return t.cswScratch[:]
}

func (t *BulkOnly) decrementResidue(n uint32) {
	if n >= t.cbw.DataTransferLen {
		t.cbw.DataTransferLen = 0
	} else {
		t.cbw.DataTransferLen -= n
	}
}

func (t *BulkOnly) startDataTransfer(cbw CommandBlockWrapper) {
	switch cbw.Direction {
	case DirectionOut:
		t.state = StateDataTransferFromHost
	case DirectionIn:
		t.state = StateDataTransferToHost
	default:
		t.state = StateDataTransferNoData
		cbw.DataTransferLen = 0
	}
	t.cbw = cbw
}

func (t *BulkOnly) readPacket() (int, error) {
	var rerr error
	n, err := t.buf.WriteAll(int(t.bus.MaxPacketSize()), func(b []byte) int {
		count, e := t.bus.ReadPacket(b)
		if e != nil {
			if !errors.Is(e, pkg.ErrNAK) {
				rerr = e
			}
			return 0
		}
		return count
	})
	if err != nil {
		return 0, err
	}
	if rerr != nil {
		return 0, rerr
	}
	if n == 0 {
		return 0, pkg.ErrNAK
	}
	return n, nil
}

func (t *BulkOnly) writePacket() (int, error) {
	packetSize := int(t.bus.MaxPacketSize())
	var werr error
	n := t.buf.Read(func(b []byte) int {
		if len(b) == 0 {
			return 0
		}
		if len(b) > packetSize {
			b = b[:packetSize]
		}
		count, e := t.bus.WritePacket(b)
		if e != nil {
			if !errors.Is(e, pkg.ErrNAK) {
				werr = e
			}
			return 0
		}
		return count
	})
	if werr != nil {
		return 0, werr
	}
	if n == 0 {
		return 0, pkg.ErrNAK
	}
	return n, nil
}

func (t *BulkOnly) enterIdle() {
	t.buf.Clean()
	t.cbw = CommandBlockWrapper{}
	t.hasStatus = false
	t.state = StateIdle
}

// Reset unstalls both endpoints and transitions to Idle, discarding any
// latched status, CBW, and buffered bytes. Call this from a bus reset
// callback.
func (t *BulkOnly) Reset() {
	pkg.LogDebug(pkg.ComponentDevice, "bulk-only transport reset")
	t.bus.UnstallIn()
	t.bus.UnstallOut()
	t.enterIdle()
}

// ControlIn answers the two Bulk-Only Transport class control requests on
// the interface recipient: Get Max LUN (one byte) and Bulk-Only Mass
// Storage Reset (accepted, no payload). It reports false for any other
// request so the caller can try other handlers.
func (t *BulkOnly) ControlIn(request uint8, reply func(data []byte)) bool {
	switch request {
	case requestGetMaxLUN:
		reply([]byte{t.maxLUN})
		return true
	case requestBulkOnlyReset:
		reply(nil)
		return true
	default:
		return false
	}
}

// GetCommand returns the CBW of the command currently open. The second
// return value is false in Idle or CommandTransfer, when no command has
// been fully parsed yet.
func (t *BulkOnly) GetCommand() (*CommandBlockWrapper, bool) {
	if t.state == StateIdle || t.state == StateCommandTransfer {
		return nil, false
	}
	return &t.cbw, true
}

// HasStatus reports whether SetStatus has already latched a status for
// the open command.
func (t *BulkOnly) HasStatus() bool {
	return t.hasStatus
}

// SetStatus latches the command status to report in the next CSW. It is
// a no-op if no command is open or a status is already latched. If status is Failed or PhaseError, the
// data phase (if any) ends immediately: the appropriate endpoint is
// stalled if the host's transfer length wasn't fully satisfied, and the
// CSW is queued right away, even though the host may not have
// transferred all of data_transfer_len yet.
//
// Callers may latch a status as soon as a command is parsed; SetStatus
// does not require an open data phase first.
func (t *BulkOnly) SetStatus(status uint8) {
	if t.state == StateIdle || t.state == StateCommandTransfer || t.hasStatus {
		return
	}
	t.hasStatus = true
	t.status = status
	if status == StatusFailed || status == StatusPhaseError {
		_ = t.endDataTransfer()
	}
}

// ReadData drains up to len(dst) unread bytes of a from-host data phase.
// It returns (0, nil) if no bytes are available yet and ErrInvalidState
// outside DataTransferFromHost.
func (t *BulkOnly) ReadData(dst []byte) (int, error) {
	if t.state != StateDataTransferFromHost {
		return 0, ErrInvalidState
	}
	n := t.buf.Read(func(b []byte) int {
		return copy(dst, b)
	})
	return n, nil
}

// WriteData writes min(len(src), residue) bytes into the IO buffer. It
// returns ErrInvalidState outside DataTransferToHost or once a status has
// been latched (the buffer is then reserved for the CSW).
func (t *BulkOnly) WriteData(src []byte) (int, error) {
	if t.state != StateDataTransferToHost {
		return 0, ErrInvalidState
	}
	if t.hasStatus {
		return 0, ErrInvalidState
	}
	max := len(src)
	if uint32(max) > t.cbw.DataTransferLen {
		max = int(t.cbw.DataTransferLen)
	}
	return t.buf.Write(src[:max]), nil
}

// TryWriteDataAll writes all of src into the IO buffer atomically. It
// returns ErrIOBufferOverflow if src does not fit even after compaction,
// and ErrInvalidState under the same conditions as WriteData.
func (t *BulkOnly) TryWriteDataAll(src []byte) error {
	if t.state != StateDataTransferToHost {
		return ErrInvalidState
	}
	if t.hasStatus {
		return ErrInvalidState
	}
	_, err := t.buf.WriteAll(len(src), func(dst []byte) int {
		return copy(dst, src)
	})
	return err
}
