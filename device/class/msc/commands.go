package msc

import (
	"github.com/ardnew/softusb/pkg"
	"github.com/ardnew/softusb/scsi"
)

// dispatchSCSI is the callback handed to scsi.SCSI.Poll. It is invoked
// once per Poll call while a command is open, and again on every
// ErrFullPacketExpected re-entry, so handlers for streaming commands
// must tolerate being called many times for the same command.
func (d *SCSIDriver) dispatchSCSI(cmd scsi.Wrapped[*SCSIDriver]) {
	if d.pending.active {
		d.stepTransfer(&cmd)
		return
	}

	if !d.checkLUN(cmd.LUN) {
		cmd.Fail()
		return
	}

	switch cmd.Kind.Op {
	case scsi.KindTestUnitReady:
		d.scsiTestUnitReady(&cmd)
	case scsi.KindRequestSense:
		d.scsiRequestSense(&cmd)
	case scsi.KindInquiry:
		d.scsiInquiry(&cmd)
	case scsi.KindReadCapacity10:
		d.scsiReadCapacity10(&cmd)
	case scsi.KindReadCapacity16:
		d.scsiReadCapacity16(&cmd)
	case scsi.KindModeSense6, scsi.KindModeSense10:
		d.scsiModeSense(&cmd)
	case scsi.KindReadFormatCapacities:
		d.scsiReadFormatCapacities(&cmd)
	case scsi.KindRead:
		d.scsiStartRead(&cmd)
	case scsi.KindWrite:
		d.scsiStartWrite(&cmd)
	default:
		pkg.LogWarn(pkg.ComponentDevice, "unsupported SCSI command", "opcode", cmd.Kind.Op)
		d.setSense(SenseIllegalRequest, ASCInvalidCommand, 0)
		cmd.Fail()
	}
}

func (d *SCSIDriver) scsiTestUnitReady(cmd *scsi.Wrapped[*SCSIDriver]) {
	if !d.storage.IsPresent() {
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		cmd.Fail()
		return
	}
	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	cmd.Pass()
}

func (d *SCSIDriver) scsiRequestSense(cmd *scsi.Wrapped[*SCSIDriver]) {
	allocLen := cmd.Kind.AllocLen
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

func (d *SCSIDriver) scsiInquiry(cmd *scsi.Wrapped[*SCSIDriver]) {
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

func (d *SCSIDriver) scsiReadCapacity10(cmd *scsi.Wrapped[*SCSIDriver]) {
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

func (d *SCSIDriver) scsiReadCapacity16(cmd *scsi.Wrapped[*SCSIDriver]) {
	if !d.storage.IsPresent() {
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		cmd.Fail()
		return
	}

	resp := ReadCapacity16Response{LastLBA: d.storage.BlockCount() - 1, BlockLength: d.storage.BlockSize()}
	var buf [32]byte
	n := resp.MarshalTo(buf[:])
	if int(cmd.Kind.AllocLen) > 0 && int(cmd.Kind.AllocLen) < n {
		n = int(cmd.Kind.AllocLen)
	}

	if err := cmd.TryWriteDataAll(buf[:n]); err != nil {
		d.setSense(SenseHardwareError, ASCNoAdditionalInfo, 0)
		cmd.Fail()
		return
	}
	cmd.Pass()
}

func (d *SCSIDriver) scsiModeSense(cmd *scsi.Wrapped[*SCSIDriver]) {
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

func (d *SCSIDriver) scsiReadFormatCapacities(cmd *scsi.Wrapped[*SCSIDriver]) {
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

func (d *SCSIDriver) scsiStartRead(cmd *scsi.Wrapped[*SCSIDriver]) {
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

func (d *SCSIDriver) scsiStartWrite(cmd *scsi.Wrapped[*SCSIDriver]) {
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

