package msc

import (
	"github.com/ardnew/softusb/pkg"
	"github.com/ardnew/softusb/ufi"
)

// dispatchUFI is the callback handed to ufi.UFI.Poll. See dispatchSCSI
// for the re-entry contract streaming handlers must honor.
func (d *UFIDriver) dispatchUFI(cmd ufi.Wrapped[*UFIDriver]) {
	if d.pending.active {
		d.stepTransfer(&cmd)
		return
	}

	if !d.checkLUN(cmd.LUN) {
		cmd.Fail()
		return
	}

	switch cmd.Kind.Op {
	case ufi.KindTestUnitReady:
		d.ufiTestUnitReady(&cmd)
	case ufi.KindRequestSense:
		d.ufiRequestSense(&cmd)
	case ufi.KindInquiry:
		d.ufiInquiry(&cmd)
	case ufi.KindReadCapacity:
		d.ufiReadCapacity(&cmd)
	case ufi.KindReadFormatCapacities:
		d.ufiReadFormatCapacities(&cmd)
	case ufi.KindModeSense6, ufi.KindModeSense10:
		d.ufiModeSense(&cmd)
	case ufi.KindModeSelect6, ufi.KindModeSelect10:
		d.ufiAck(&cmd)
	case ufi.KindRezeroUnit, ufi.KindSeek10, ufi.KindSendDiagnostic:
		d.ufiAck(&cmd)
	case ufi.KindStartStopUnit:
		d.ufiStartStopUnit(&cmd)
	case ufi.KindFormatUnit:
		d.ufiFormatUnit(&cmd)
	case ufi.KindVerify, ufi.KindWriteAndVerify:
		d.ufiAck(&cmd)
	case ufi.KindRead, ufi.KindRead12:
		d.ufiStartRead(&cmd)
	case ufi.KindWrite:
		d.ufiStartWrite(&cmd)
	case ufi.KindPreventAllowMediumRemoval:
		d.ufiPreventAllowMediumRemoval(&cmd)
	default:
		pkg.LogWarn(pkg.ComponentDevice, "unsupported UFI command", "opcode", cmd.Kind.Op)
		d.setSense(SenseIllegalRequest, ASCInvalidCommand, 0)
		cmd.Fail()
	}
}

// ufiAck acknowledges a command this driver doesn't model any real
// behaviour for (SEEK, REZERO, SEND DIAGNOSTIC, MODE SELECT, VERIFY):
// report success without touching storage.
func (d *UFIDriver) ufiAck(cmd *ufi.Wrapped[*UFIDriver]) {
	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	cmd.Pass()
}

func (d *UFIDriver) ufiTestUnitReady(cmd *ufi.Wrapped[*UFIDriver]) {
	if !d.storage.IsPresent() {
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		cmd.Fail()
		return
	}
	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	cmd.Pass()
}

func (d *UFIDriver) ufiRequestSense(cmd *ufi.Wrapped[*UFIDriver]) {
	allocLen := cmd.Kind.AllocLenByte
	if allocLen == 0 {
		allocLen = 18
	}

	resp := NewRequestSenseResponse(d.senseKey, d.asc, d.ascq)
	var buf [18]byte
	n := resp.MarshalTo(buf[:])
	if int(allocLen) < n {
		n = int(allocLen)
	}

	if err := cmd.TryWriteDataAll(buf[:n]); err != nil {
		cmd.Fail()
		return
	}
	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	cmd.Pass()
}

func (d *UFIDriver) ufiInquiry(cmd *ufi.Wrapped[*UFIDriver]) {
	if cmd.Kind.AllocLen == 0 {
		cmd.Pass()
		return
	}

	var buf [InquiryStandardSize]byte
	n := d.inquiry.MarshalTo(buf[:])
	if int(cmd.Kind.AllocLen) < n {
		n = int(cmd.Kind.AllocLen)
	}

	if err := cmd.TryWriteDataAll(buf[:n]); err != nil {
		d.setSense(SenseHardwareError, ASCNoAdditionalInfo, 0)
		cmd.Fail()
		return
	}
	cmd.Pass()
}

func (d *UFIDriver) ufiReadCapacity(cmd *ufi.Wrapped[*UFIDriver]) {
	if !d.storage.IsPresent() {
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		cmd.Fail()
		return
	}

	blockCount := d.storage.BlockCount()
	lastLBA := uint32(blockCount - 1)
	if blockCount > 0xFFFFFFFF {
		lastLBA = 0xFFFFFFFF
	}

	resp := ReadCapacity10Response{LastLBA: lastLBA, BlockLength: d.storage.BlockSize()}
	var buf [8]byte
	n := resp.MarshalTo(buf[:])

	if err := cmd.TryWriteDataAll(buf[:n]); err != nil {
		d.setSense(SenseHardwareError, ASCNoAdditionalInfo, 0)
		cmd.Fail()
		return
	}
	cmd.Pass()
}

func (d *UFIDriver) ufiReadFormatCapacities(cmd *ufi.Wrapped[*UFIDriver]) {
	if !d.storage.IsPresent() {
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		cmd.Fail()
		return
	}
	if cmd.Kind.AllocLen == 0 {
		cmd.Pass()
		return
	}

	var buf [12]byte
	offset := 0
	header := ReadFormatCapacitiesHeader{CapacityLength: 8}
	offset += header.MarshalTo(buf[offset:])

	desc := CurrentMaximumCapacityDescriptor{
		BlockCount:  uint32(d.storage.BlockCount()),
		DescType:    0x02,
		BlockLength: d.storage.BlockSize(),
	}
	offset += desc.MarshalTo(buf[offset:])

	n := offset
	if int(cmd.Kind.AllocLen) < n {
		n = int(cmd.Kind.AllocLen)
	}

	if err := cmd.TryWriteDataAll(buf[:n]); err != nil {
		d.setSense(SenseHardwareError, ASCNoAdditionalInfo, 0)
		cmd.Fail()
		return
	}
	cmd.Pass()
}

func (d *UFIDriver) ufiModeSense(cmd *ufi.Wrapped[*UFIDriver]) {
	if cmd.Kind.AllocLen == 0 {
		cmd.Pass()
		return
	}

	resp := ModeSense6Response{ModeDataLength: 3}
	if d.storage.IsReadOnly() {
		resp.DeviceParam = 0x80
	}

	var buf [4]byte
	n := resp.MarshalTo(buf[:])
	if int(cmd.Kind.AllocLen) < n {
		n = int(cmd.Kind.AllocLen)
	}

	if err := cmd.TryWriteDataAll(buf[:n]); err != nil {
		d.setSense(SenseHardwareError, ASCNoAdditionalInfo, 0)
		cmd.Fail()
		return
	}
	cmd.Pass()
}

func (d *UFIDriver) ufiStartStopUnit(cmd *ufi.Wrapped[*UFIDriver]) {
	pkg.LogDebug(pkg.ComponentDevice, "START STOP UNIT", "start", cmd.Kind.Start, "eject", cmd.Kind.Eject)

	if cmd.Kind.Eject && !cmd.Kind.Start {
		if d.storage.IsRemovable() {
			if err := d.storage.Eject(); err != nil {
				d.setSense(SenseNotReady, ASCMediumRemovalPrevented, 0)
				cmd.Fail()
				return
			}
		}
	}

	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	cmd.Pass()
}

// ufiPreventAllowMediumRemoval services PREVENT/ALLOW MEDIUM REMOVAL
// (0x1E). Floppy-class UFI hosts issue this before a WRITE run to keep
// the medium from being physically ejected mid-transfer; fixed media
// that cannot be removed accepts the command as a no-op.
func (d *UFIDriver) ufiPreventAllowMediumRemoval(cmd *ufi.Wrapped[*UFIDriver]) {
	pkg.LogDebug(pkg.ComponentDevice, "PREVENT ALLOW MEDIUM REMOVAL", "prevent", cmd.Kind.Prevent)

	if d.storage.IsRemovable() {
		if err := d.storage.Lock(cmd.Kind.Prevent); err != nil {
			d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
			cmd.Fail()
			return
		}
	}

	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	cmd.Pass()
}

func (d *UFIDriver) ufiFormatUnit(cmd *ufi.Wrapped[*UFIDriver]) {
	if d.storage.IsReadOnly() {
		d.setSense(SenseDataProtect, ASCWriteProtected, 0)
		cmd.Fail()
		return
	}
	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	cmd.Pass()
}

func (d *UFIDriver) ufiStartRead(cmd *ufi.Wrapped[*UFIDriver]) {
	if !d.storage.IsPresent() {
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		cmd.Fail()
		return
	}
	if cmd.Kind.Len == 0 {
		cmd.Pass()
		return
	}
	if cmd.Kind.LBA+cmd.Kind.Len > d.storage.BlockCount() {
		d.setSense(SenseIllegalRequest, ASCLBAOutOfRange, 0)
		cmd.Fail()
		return
	}

	pkg.LogDebug(pkg.ComponentDevice, "READ", "lba", cmd.Kind.LBA, "blocks", cmd.Kind.Len)
	d.beginRead(cmd.Kind.LBA, uint32(cmd.Kind.Len))
	d.stepTransfer(cmd)
}

func (d *UFIDriver) ufiStartWrite(cmd *ufi.Wrapped[*UFIDriver]) {
	if !d.storage.IsPresent() {
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		cmd.Fail()
		return
	}
	if d.storage.IsReadOnly() {
		d.setSense(SenseDataProtect, ASCWriteProtected, 0)
		cmd.Fail()
		return
	}
	if cmd.Kind.Len == 0 {
		cmd.Pass()
		return
	}
	if cmd.Kind.LBA+cmd.Kind.Len > d.storage.BlockCount() {
		d.setSense(SenseIllegalRequest, ASCLBAOutOfRange, 0)
		cmd.Fail()
		return
	}

	pkg.LogDebug(pkg.ComponentDevice, "WRITE", "lba", cmd.Kind.LBA, "blocks", cmd.Kind.Len)
	d.beginWrite(cmd.Kind.LBA, uint32(cmd.Kind.Len))
	d.stepTransfer(cmd)
}
