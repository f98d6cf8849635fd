// Package msc implements the USB Mass Storage Class (MSC) device driver
// using Bulk-Only Transport (BOT) protocol, with a choice of the SCSI
// Transparent Command Set or the UFI command set on top.
//
// The MSC class allows a USB device to appear as a standard disk drive,
// USB flash drive, or other mass storage device to the host system.
//
// # Architecture
//
// The MSC driver is built from three layers:
//
//  1. bbb.BulkOnly - the CBW/CSW state machine, driven non-blockingly
//  2. scsi.SCSI / ufi.UFI - parses a command block into a tagged command
//     and calls back into this package's command handlers
//  3. Storage - block-level storage backend
//
// Unlike a typical blocking USB stack, nothing here spawns a goroutine
// or blocks waiting for the host: SCSIDriver.Poll and UFIDriver.Poll
// must be called repeatedly (from whatever event loop schedules USB
// work) and make progress one non-blocking step at a time.
//
// # SCSI / UFI Command Support
//
// The driver implements the commands sufficient for disk operation:
// INQUIRY, READ CAPACITY, READ/WRITE, TEST UNIT READY, REQUEST SENSE,
// MODE SENSE, and the UFI-specific START STOP UNIT, FORMAT UNIT, SEEK,
// REZERO UNIT, SEND DIAGNOSTIC and VERIFY commands.
//
// # Storage Backend
//
// Storage is abstracted through the Storage interface, allowing
// different backend implementations:
//
//   - MemoryStorage - In-memory RAM disk
//   - FileStorage - File-backed disk image
//   - Custom implementations - Any block device
//
// # Usage Example
//
//	storage := msc.NewMemoryStorage(1024*1024, 512)
//	disk := msc.NewSCSI(storage, "softusb", "Virtual Disk")
//
//	builder := device.NewDeviceBuilder().
//	    WithVendorProduct(0x1234, 0x5680).
//	    WithStrings("softusb", "Mass Storage", "12345678").
//	    AddConfiguration(1)
//
//	disk.ConfigureDevice(builder, 0x81, 0x01)
//
//	dev, _ := builder.Build(ctx)
//
//	stack := device.NewStack(dev, hal)
//	disk.SetStack(stack)
//	disk.AttachToInterface(dev, 1, 0) // needs the stack: pkg.ErrNotConfigured otherwise
//	stack.Start(ctx)
//
//	for stack.IsConnected() {
//	    if err := disk.Poll(); err != nil {
//	        break
//	    }
//	}
//
// # References
//
//   - USB Mass Storage Class Specification 1.0
//   - USB Mass Storage Bulk-Only Transport 1.0
//   - USB Mass Storage UFI Command Specification
//   - SCSI Primary Commands (SPC-4)
//   - SCSI Block Commands (SBC-3)
package msc
