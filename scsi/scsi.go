// Package scsi implements the SCSI Transparent Command Set subclass
// (0x06) for USB Mass Storage: a pure command-block parser plus a thin
// driver that polls a Bulk-Only Transport and dispatches parsed SCSI
// commands to a user callback.
package scsi

import (
	"encoding/binary"

	"github.com/ardnew/softusb/bbb"
	"github.com/ardnew/softusb/subclass"
)

// Subclass is the USB Mass Storage Class subclass code for SCSI.
const Subclass = 0x06

// SPC/SBC/MMC operation codes this parser recognises.
const (
	opTestUnitReady        = 0x00
	opRequestSense         = 0x03
	opInquiry              = 0x12
	opModeSense6           = 0x1A
	opReadCapacity10       = 0x25
	opReadFormatCapacities = 0x23
	opRead10               = 0x28
	opWrite10              = 0x2A
	opModeSense10          = 0x5A
	opRead16               = 0x88
	opReadCapacity16       = 0x9E
)

// PageControl is the two-bit page control field of MODE SENSE commands.
type PageControl uint8

const (
	PageControlCurrent    PageControl = 0b00
	PageControlChangeable PageControl = 0b01
	PageControlDefault    PageControl = 0b10
	PageControlSaved      PageControl = 0b11
)

// Kind identifies which SCSI command a Command carries; its fields are
// only meaningful for the matching Op.
type Kind uint8

const (
	Unknown Kind = iota
	KindInquiry
	KindTestUnitReady
	KindRequestSense
	KindModeSense6
	KindModeSense10
	KindReadCapacity10
	KindReadCapacity16
	KindRead
	KindWrite
	KindReadFormatCapacities
)

// Command is the decoded form of a SCSI command block. Only the fields
// relevant to Op are populated; the rest are zero.
type Command struct {
	Op Kind

	// Inquiry
	EVPD      bool
	PageCode  uint8
	AllocLen  uint32

	// RequestSense
	Desc bool

	// ModeSense6/10
	DBD         bool
	PageControl PageControl
	SubpageCode uint8

	// ReadCapacity16
	// (AllocLen shared above)

	// Read / Write
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

	case opInquiry:
		return Command{
			Op:       KindInquiry,
			EVPD:     cb[1]&0x01 != 0,
			PageCode: cb[2],
			AllocLen: uint32(binary.BigEndian.Uint16(cb[3:5])),
		}

	case opRequestSense:
		return Command{
			Op:       KindRequestSense,
			Desc:     cb[1]&0x01 != 0,
			AllocLen: uint32(cb[4]),
		}

	case opReadCapacity10:
		return Command{Op: KindReadCapacity10}

	case opReadCapacity16:
		return Command{
			Op:       KindReadCapacity16,
			AllocLen: binary.BigEndian.Uint32(cb[10:14]),
		}

	case opRead10:
		return Command{
			Op:  KindRead,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
			Len: uint64(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opRead16:
		return Command{
			Op:  KindRead,
			LBA: binary.BigEndian.Uint64(cb[2:10]),
			Len: uint64(binary.BigEndian.Uint32(cb[10:14])),
		}

	case opWrite10:
		return Command{
			Op:  KindWrite,
			LBA: uint64(binary.BigEndian.Uint32(cb[2:6])),
			Len: uint64(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opModeSense6:
		return Command{
			Op:          KindModeSense6,
			DBD:         cb[1]&0x08 != 0,
			PageControl: PageControl(cb[2] >> 6),
			PageCode:    cb[2] & 0x3F,
			SubpageCode: cb[3],
			AllocLen:    uint32(cb[4]),
		}

	case opModeSense10:
		return Command{
			Op:          KindModeSense10,
			DBD:         cb[1]&0x08 != 0,
			PageControl: PageControl(cb[2] >> 6),
			PageCode:    cb[2] & 0x3F,
			SubpageCode: cb[3],
			AllocLen:    uint32(binary.BigEndian.Uint16(cb[7:9])),
		}

	case opReadFormatCapacities:
		return Command{
			Op:       KindReadFormatCapacities,
			AllocLen: uint32(binary.BigEndian.Uint16(cb[7:9])),
		}

	default:
		return Command{Op: Unknown}
	}
}

// Wrapped is the Command type a SCSI callback receives: the parsed
// command block bundled with the transport driving it and the owning
// Class.
type Wrapped[Class any] = subclass.Command[Command, Class]

// SCSI drives the SCSI command set over a Bulk-Only Transport.
type SCSI[Class any] struct {
	class     Class
	transport *bbb.BulkOnly
}

// New wraps transport for SCSI command dispatch. class is passed
// through to every callback invocation, typically the concrete class
// driver that owns storage state and sense data.
func New[Class any](class Class, transport *bbb.BulkOnly) *SCSI[Class] {
	return &SCSI[Class]{class: class, transport: transport}
}

// Transport returns the underlying Bulk-Only Transport, e.g. to forward
// a bus reset or a control-in request.
func (s *SCSI[Class]) Transport() *bbb.BulkOnly {
	return s.transport
}

// Poll drives the transport and, once a command has been fully parsed,
// invokes callback with it. See subclass.Poll for the exact contract.
func (s *SCSI[Class]) Poll(callback func(Wrapped[Class])) error {
	return subclass.Poll(s.transport, s.class, Parse, callback)
}
