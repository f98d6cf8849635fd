package msc

import (
	"sync"

	"github.com/ardnew/softusb/bbb"
	"github.com/ardnew/softusb/device"
	"github.com/ardnew/softusb/pkg"
)

// ioBufferSize sizes the working buffer the Bulk-Only Transport shifts
// packets through. It only needs to hold a handful of max-size packets;
// large transfers are streamed through it one block at a time rather
// than staged whole.
const ioBufferSize = 4096

// maxBlockSize bounds the per-block scratch buffer used to stream
// READ/WRITE commands. Storage backends with a larger block size are
// not supported by this driver.
const maxBlockSize = 4096

// core holds the state shared by the SCSI and UFI class drivers: the
// interface/endpoint wiring, the Bulk-Only Transport, the storage
// backend, sense data, and the in-flight block-transfer cursor that
// lets a READ/WRITE command stream across many non-blocking Poll calls.
type core struct {
	mutex sync.RWMutex

	iface     *device.Interface
	bulkInEP  *device.Endpoint
	bulkOutEP *device.Endpoint
	stack     *device.Stack

	transport *bbb.BulkOnly
	ioBuf     [ioBufferSize]byte

	storage Storage
	inquiry InquiryResponse

	senseKey uint8
	asc      uint8
	ascq     uint8

	configured bool
	maxLUN     uint8

	blockScratch [maxBlockSize]byte
	pending      pendingTransfer
}

// pendingTransfer tracks a block-level READ/WRITE in progress across
// repeated Poll invocations. blockBuf is a view into core.blockScratch
// holding the bytes of the block currently being pushed to or pulled
// from the host; off is how much of it has already been handed to (READ)
// or drained from (WRITE) the transport's IO buffer.
type pendingTransfer struct {
	active bool
	toHost bool // true: device-to-host (READ); false: host-to-device (WRITE)
	lba    uint64
	blocks uint32

	blockBuf []byte
	filled   int // valid bytes in blockBuf for a READ not yet fully sent
	off      int // bytes of blockBuf already consumed
}

// dataPhase is the subset of subclass.Command a streaming transfer
// needs: move bytes and terminate the command. Both scsi.Wrapped and
// ufi.Wrapped instances satisfy it.
type dataPhase interface {
	ReadData(dst []byte) (int, error)
	WriteData(src []byte) (int, error)
	Pass()
	Fail()
	FailPhase()
}

// beginRead arms a device-to-host block stream starting at lba for
// blocks logical blocks.
func (c *core) beginRead(lba uint64, blocks uint32) {
	c.pending = pendingTransfer{active: true, toHost: true, lba: lba, blocks: blocks}
}

// beginWrite arms a host-to-device block stream starting at lba for
// blocks logical blocks.
func (c *core) beginWrite(lba uint64, blocks uint32) {
	c.pending = pendingTransfer{active: true, toHost: false, lba: lba, blocks: blocks}
}

// stepTransfer advances the in-flight block stream by whatever the
// transport's IO buffer has room for this round, calling Pass/Fail on
// cmd once the whole run completes or storage reports an error. It is
// a no-op if no transfer is pending, so command handlers can call it
// unconditionally on every Poll invocation.
func (c *core) stepTransfer(cmd dataPhase) {
	p := &c.pending
	if !p.active {
		return
	}
	blockSize := int(c.storage.BlockSize())
	if blockSize > maxBlockSize {
		c.setSense(SenseHardwareError, ASCNoAdditionalInfo, 0)
		p.active = false
		cmd.Fail()
		return
	}

	if p.toHost {
		c.stepReadToHost(cmd, p, blockSize)
	} else {
		c.stepWriteFromHost(cmd, p, blockSize)
	}
}

func (c *core) stepReadToHost(cmd dataPhase, p *pendingTransfer, blockSize int) {
	for {
		if p.off >= p.filled {
			if p.blocks == 0 {
				p.active = false
				cmd.Pass()
				return
			}
			p.blockBuf = c.blockScratch[:blockSize]
			n, err := c.storage.Read(p.lba, 1, p.blockBuf)
			if err != nil || n == 0 {
				c.setSense(SenseMediumError, ASCNoAdditionalInfo, 0)
				p.active = false
				cmd.Fail()
				return
			}
			p.lba++
			p.blocks--
			p.off = 0
			p.filled = blockSize
		}

		n, err := cmd.WriteData(p.blockBuf[p.off:p.filled])
		if err != nil {
			return
		}
		p.off += n
		if n == 0 {
			return
		}
	}
}

func (c *core) stepWriteFromHost(cmd dataPhase, p *pendingTransfer, blockSize int) {
	if p.blockBuf == nil {
		p.blockBuf = c.blockScratch[:blockSize]
		p.off = 0
	}
	for p.blocks > 0 {
		n, err := cmd.ReadData(p.blockBuf[p.off:])
		if err != nil {
			return
		}
		p.off += n
		if p.off < blockSize {
			if n == 0 {
				return
			}
			continue
		}

		if _, err := c.storage.Write(p.lba, 1, p.blockBuf); err != nil {
			c.setSense(SenseMediumError, ASCNoAdditionalInfo, 0)
			p.active = false
			cmd.Fail()
			return
		}
		p.lba++
		p.blocks--
		p.off = 0
	}
	p.active = false
	cmd.Pass()
}

// newCore builds the state shared by the SCSI and UFI drivers. legacyInquiry
// selects the INQUIRY response shape: UFI devices report the pre-SPC
// format and claim no standards conformance, while the SCSI Transparent
// Command Set reports SPC-4 (see NewUFIInquiryResponse/NewInquiryResponse).
func newCore(storage Storage, vendorID, productID string, maxLUN uint8, legacyInquiry bool) *core {
	c := &core{
		storage: storage,
		maxLUN:  maxLUN,
	}
	if legacyInquiry {
		c.inquiry = *NewUFIInquiryResponse(DeviceTypeDisk, storage.IsRemovable(), vendorID, productID, "1.0")
	} else {
		c.inquiry = *NewInquiryResponse(DeviceTypeDisk, storage.IsRemovable(), vendorID, productID, "1.0")
	}
	c.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	return c
}

func (c *core) setSense(key, asc, ascq uint8) {
	c.senseKey = key
	c.asc = asc
	c.ascq = ascq
}

// SetStack sets the device stack used to drive the bulk endpoints.
func (c *core) SetStack(stack *device.Stack) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stack = stack
}

// SetMaxLUN sets the maximum Logical Unit Number (0-15).
func (c *core) SetMaxLUN(lun uint8) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if lun <= 15 {
		c.maxLUN = lun
	}
}

func (c *core) init(iface *device.Interface) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.iface = iface

	for _, ep := range iface.Endpoints() {
		if ep.IsBulk() {
			if ep.IsIn() {
				c.bulkInEP = ep
			} else {
				c.bulkOutEP = ep
			}
		}
	}

	if c.bulkInEP == nil || c.bulkOutEP == nil {
		return pkg.ErrInvalidEndpoint
	}
	if c.stack == nil {
		return pkg.ErrNotConfigured
	}

	transport, err := bbb.New(&endpointBus{stack: c.stack, in: c.bulkInEP, out: c.bulkOutEP}, c.ioBuf[:], c.maxLUN)
	if err != nil {
		return err
	}
	c.transport = transport
	c.configured = true

	pkg.LogDebug(pkg.ComponentDevice, "MSC configured",
		"bulkIn", c.bulkInEP.Address,
		"bulkOut", c.bulkOutEP.Address)

	return nil
}

func (c *core) handleSetup(setup *device.SetupPacket, data []byte) (bool, error) {
	if !setup.IsClass() {
		return false, nil
	}

	c.mutex.RLock()
	transport := c.transport
	c.mutex.RUnlock()

	if transport == nil {
		return false, pkg.ErrNotConfigured
	}

	handled := transport.ControlIn(setup.Request, func(reply []byte) {
		copy(data, reply)
	})
	if !handled {
		return false, nil
	}

	if setup.Request == RequestBulkOnlyMassStorageReset {
		c.mutex.Lock()
		c.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
		c.pending = pendingTransfer{}
		c.mutex.Unlock()
		pkg.LogDebug(pkg.ComponentDevice, "MSC reset requested")
	} else {
		pkg.LogDebug(pkg.ComponentDevice, "Get Max LUN", "maxLUN", c.maxLUN)
	}

	return true, nil
}

func (c *core) setAlternate(iface *device.Interface, alt uint8) error {
	pkg.LogDebug(pkg.ComponentDevice, "MSC alternate setting",
		"interface", iface.Number,
		"alt", alt)
	return nil
}

func (c *core) close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.iface = nil
	c.bulkInEP = nil
	c.bulkOutEP = nil
	c.stack = nil
	c.transport = nil
	c.configured = false

	return nil
}

// configureDevice adds the MSC interface and its two bulk endpoints to
// a device builder. subclass selects the command set (SubclassSCSI or
// SubclassUFI).
func configureDevice(builder *device.DeviceBuilder, subclass uint8, bulkInEPAddr, bulkOutEPAddr uint8) *device.DeviceBuilder {
	builder.AddInterface(ClassMSC, subclass, ProtocolBulkOnly)
	builder.AddEndpoint(bulkInEPAddr|device.EndpointDirectionIn, device.EndpointTypeBulk, 64)
	builder.AddEndpoint(bulkOutEPAddr&0x0F, device.EndpointTypeBulk, 64)
	return builder
}

// attachToInterface attaches driver to the MSC interface of dev.
func attachToInterface(dev *device.Device, driver device.ClassDriver, configValue, ifaceNum uint8) error {
	config := dev.GetConfiguration(configValue)
	if config == nil {
		return pkg.ErrInvalidRequest
	}

	iface := config.GetInterface(ifaceNum)
	if iface == nil {
		return pkg.ErrInvalidRequest
	}

	return iface.SetClassDriver(driver)
}

// checkLUN fails and latches sense data if lun exceeds the configured
// maximum. It reports false when the command should not proceed.
func (c *core) checkLUN(lun uint8) bool {
	if lun > c.maxLUN {
		c.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		return false
	}
	return true
}
