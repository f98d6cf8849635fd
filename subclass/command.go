// Package subclass holds the pieces shared by the SCSI and UFI command
// sets layered on top of a Bulk-Only Transport: the per-command wrapper
// handed to a user callback, and the poll-loop shape both subclasses
// drive the transport with.
package subclass

import (
	"errors"

	"github.com/ardnew/softusb/bbb"
	"github.com/ardnew/softusb/pkg"
)

// Transport is the subset of bbb.BulkOnly a Command needs to service
// data phases and terminate a command. Subclasses depend on this
// interface rather than the concrete type so tests can substitute a
// fake transport.
type Transport interface {
	ReadData(dst []byte) (int, error)
	WriteData(src []byte) (int, error)
	TryWriteDataAll(src []byte) error
	SetStatus(status uint8)
}

// Command wraps one parsed command block together with the transport
// it arrived on. Kind carries the subclass-specific parsed command
// (scsi.Command or ufi.Command); Class is the owning subclass driver,
// exposed so callback code can reach storage/device state hung off it.
type Command[Kind any, Class any] struct {
	Class Class
	Kind  Kind
	LUN   uint8

	transport Transport
}

// New wraps kind and lun with the transport that will carry its data and
// status phases.
func New[Kind any, Class any](class Class, kind Kind, lun uint8, transport Transport) Command[Kind, Class] {
	return Command[Kind, Class]{Class: class, Kind: kind, LUN: lun, transport: transport}
}

// ReadData drains up to len(dst) bytes of a host-to-device data phase.
func (c *Command[Kind, Class]) ReadData(dst []byte) (int, error) {
	return c.transport.ReadData(dst)
}

// WriteData queues up to len(src) bytes of a device-to-host data phase.
func (c *Command[Kind, Class]) WriteData(src []byte) (int, error) {
	return c.transport.WriteData(src)
}

// TryWriteDataAll queues all of src, compacting the transport's IO
// buffer if needed. It returns bbb.ErrIOBufferOverflow if src can never
// fit.
func (c *Command[Kind, Class]) TryWriteDataAll(src []byte) error {
	return c.transport.TryWriteDataAll(src)
}

// Pass terminates the command successfully.
func (c *Command[Kind, Class]) Pass() {
	c.transport.SetStatus(bbb.StatusPassed)
}

// Fail terminates the command with CommandFailed.
func (c *Command[Kind, Class]) Fail() {
	c.transport.SetStatus(bbb.StatusFailed)
}

// FailPhase terminates the command with PhaseError.
func (c *Command[Kind, Class]) FailPhase() {
	c.transport.SetStatus(bbb.StatusPhaseError)
}

// IgnoreProgress reports whether err represents "no progress this
// round" rather than a genuine bus failure: a would-block signal or one
// of the transport's own sentinel errors. The poll loop swallows these
// so the next call can retry; any other error is a real bus error and
// propagates to the caller.
func IgnoreProgress(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, pkg.ErrNAK):
		return true
	case errors.Is(err, bbb.ErrIOBufferOverflow),
		errors.Is(err, bbb.ErrInvalidState),
		errors.Is(err, bbb.ErrFullPacketExpected):
		return true
	default:
		return false
	}
}
