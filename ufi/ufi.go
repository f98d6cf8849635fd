// Package ufi implements the UFI command set subclass (0x04) for USB
// Mass Storage, historically used by floppy-class devices: a pure
// command-block parser plus a thin driver that polls a Bulk-Only
// Transport and dispatches parsed UFI commands to a user callback.
package ufi

import (
	"encoding/binary"

	"github.com/ardnew/softusb/bbb"
	"github.com/ardnew/softusb/subclass"
)

// Subclass is the USB Mass Storage Class subclass code for UFI.
const Subclass = 0x04

// UFI operation codes this parser recognises.
const (
	opTestUnitReady             = 0x00
	opRezeroUnit                = 0x01
	opRequestSense              = 0x03
	opFormatUnit                = 0x04
	opInquiry                   = 0x12
	opModeSelect6               = 0x15
	opModeSense6                = 0x1A
	opStartStopUnit             = 0x1B
	opPreventAllowMediumRemoval = 0x1E
	opSendDiagnostic            = 0x1D
	opReadFormatCapacities      = 0x23
	opReadCapacity              = 0x25
	opRead10                    = 0x28
	opWrite10                   = 0x2A
	opSeek10                    = 0x2B
	opWriteAndVerify            = 0x2E
	opVerify                    = 0x2F
	opModeSelect10              = 0x55
	opModeSense10               = 0x5A
	opRead12                    = 0xA8
	opWrite12                   = 0xAA
)

// sectorsPerTrack and headsPerCylinder match the CHS geometry the UFI
// source assumes when translating an LBA for Seek/Rezero handlers.
const (
	sectorsPerTrack  = 63
	headsPerCylinder = 16
)

// LBAToCHS converts a logical block address into the cylinder/head/sector
// triple a floppy-class UFI device reports it in, using the fixed
// 16-head/63-sector-per-track geometry the command set assumes.
func LBAToCHS(lba uint32) (cylinder, head, sector uint32) {
	sector = lba%sectorsPerTrack + 1
	head = (lba / sectorsPerTrack) % headsPerCylinder
	cylinder = lba / (sectorsPerTrack * headsPerCylinder)
	return
}

// Kind identifies which UFI command a Command carries; its fields are
// only meaningful for the matching Op.
type Kind uint8

const (
	Unknown Kind = iota
	KindInquiry
	KindTestUnitReady
	KindRequestSense
	KindFormatUnit
	KindRezeroUnit
	KindSeek10
	KindWriteAndVerify
	KindVerify
	KindModeSelect6
	KindModeSelect10
	KindModeSense6
	KindModeSense10
	KindStartStopUnit
	KindSendDiagnostic
	KindReadFormatCapacities
	KindReadCapacity
	KindRead
	KindRead12
	KindWrite
	KindPreventAllowMediumRemoval
)

// Command is the decoded form of a UFI command block. Only the fields
// relevant to Op are populated; the rest are zero.
type Command struct {
	Op Kind

	// Inquiry
	EVPD     bool
	PageCode uint8
	AllocLen uint32

	// RequestSense
	AllocLenByte uint8

	// FormatUnit
	TrackFormat uint8
	Interleave  uint16

	// ModeSelect6/10 and ModeSense6/10
	PFBit       bool
	SPBit       bool
	ParamListLen uint16

	// SendDiagnostic
	Default bool

	// StartStopUnit
	Start bool
	Eject bool

	// PreventAllowMediumRemoval
	Prevent bool

	// LBA-addressed commands: Seek10, Read/Write(10/12), Verify
	LBA uint64
	Len uint64
}

// Parse decodes a raw command block into a tagged Command. Unknown
// opcodes produce Command{Op: Unknown}, never an error — callers are
// expected to fail the command and set sense data if they don't
// recognise it.
func Parse(cb []byte) Command {
	if len(cb) == 0 {
		return Command{Op: Unknown}
	}
	switch cb[0] {
	case opTestUnitReady:
		return Command{Op: KindTestUnitReady}

	case opRezeroUnit:
		return Command{Op: KindRezeroUnit}

	case opInquiry:
		return Command{
			Op:       KindInquiry,
			EVPD:     cb[1]&0x01 != 0,
			PageCode: cb[2],
			AllocLen: uint32(cb[4]),
		}

	case opRequestSense:
		return Command{
			Op:           KindRequestSense,
			AllocLenByte: cb[4],
		}

	case opFormatUnit:
		return Command{
			Op:          KindFormatUnit,
			TrackFormat: cb[2] & 0x1F,
			Interleave:  binary.BigEndian.Uint16(cb[6:8]),
		}

	case opModeSelect6:
		return Command{
			Op:           KindModeSelect6,
			PFBit:        cb[1]&0x10 != 0,
			ParamListLen: uint16(cb[4]),
		}

	case opModeSelect10:
		return Command{
			Op:           KindModeSelect10,
			PFBit:        cb[1]&0x10 != 0,
			ParamListLen: binary.BigEndian.Uint16(cb[7:9]),
		}

	case opModeSense6:
		return Command{
			Op:       KindModeSense6,
			PageCode: cb[2] & 0x3F,
			AllocLen: uint32(cb[4]),
		}

	case opModeSense10:
		return Command{
			Op:       KindModeSense10,
			PageCode: cb[2] & 0x3F,
			AllocLen: uint32(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opReadFormatCapacities:
		return Command{
			Op:       KindReadFormatCapacities,
			AllocLen: uint32(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opReadCapacity:
		return Command{Op: KindReadCapacity}

	case opRead10:
		return Command{
			Op:  KindRead,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
			Len: uint64(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opRead12:
		return Command{
			Op:  KindRead12,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
			Len: uint64(binary.BigEndian.Uint32(cb[6:10])),
		}

	case opWrite10:
		return Command{
			Op:  KindWrite,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
			Len: uint64(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opWrite12:
		return Command{
			Op:  KindWrite,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
			Len: uint64(binary.BigEndian.Uint32(cb[6:10])),
		}

	case opWriteAndVerify:
		return Command{
			Op:  KindWriteAndVerify,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
			Len: uint64(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opVerify:
		return Command{
			Op:  KindVerify,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
			Len: uint64(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opSeek10:
		return Command{
			Op:  KindSeek10,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
		}

	case opSendDiagnostic:
		return Command{
			Op:      KindSendDiagnostic,
			Default: cb[1]&(1<<2) > 0,
		}

	case opStartStopUnit:
		return Command{
			Op:    KindStartStopUnit,
			Start: cb[4]&1 > 0,
			Eject: cb[4] == 2,
		}

	case opPreventAllowMediumRemoval:
		return Command{
			Op:      KindPreventAllowMediumRemoval,
			Prevent: cb[4] != 0,
		}

	default:
		return Command{Op: Unknown}
	}
}

// Wrapped is the Command type a UFI callback receives: the parsed
// command block bundled with the transport driving it and the owning
// Class.
type Wrapped[Class any] = subclass.Command[Command, Class]

// UFI drives the UFI command set over a Bulk-Only Transport.
type UFI[Class any] struct {
	class     Class
	transport *bbb.BulkOnly
}

// New wraps transport for UFI command dispatch. class is passed through
// to every callback invocation, typically the concrete class driver
// that owns storage state and sense data.
func New[Class any](class Class, transport *bbb.BulkOnly) *UFI[Class] {
	return &UFI[Class]{class: class, transport: transport}
}

// Transport returns the underlying Bulk-Only Transport, e.g. to forward
// a bus reset or a control-in request.
func (u *UFI[Class]) Transport() *bbb.BulkOnly {
	return u.transport
}

// Poll drives the transport and, once a command has been fully parsed,
// invokes callback with it. See subclass.Poll for the exact contract.
func (u *UFI[Class]) Poll(callback func(Wrapped[Class])) error {
	return subclass.Poll(u.transport, u.class, Parse, callback)
}
