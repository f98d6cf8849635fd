package msc

import (
	"github.com/ardnew/softusb/device"
	"github.com/ardnew/softusb/pkg"
	"github.com/ardnew/softusb/ufi"
)

// UFIDriver is a USB Mass Storage class driver speaking the UFI command
// set (subclass 0x04) over Bulk-Only Transport, as used historically by
// floppy-class devices.
type UFIDriver struct {
	*core
	ufi *ufi.UFI[*UFIDriver]
}

// NewUFI creates a UFI-subclass MSC driver over storage.
func NewUFI(storage Storage, vendorID, productID string) *UFIDriver {
	d := &UFIDriver{core: newCore(storage, vendorID, productID, 0, true)}
	d.ufi = ufi.New[*UFIDriver](d, nil)
	return d
}

func (d *UFIDriver) Init(iface *device.Interface) error {
	if err := d.core.init(iface); err != nil {
		return err
	}
	d.ufi = ufi.New[*UFIDriver](d, d.transport)
	return nil
}

func (d *UFIDriver) HandleSetup(iface *device.Interface, setup *device.SetupPacket, data []byte) (bool, error) {
	return d.core.handleSetup(setup, data)
}

func (d *UFIDriver) SetAlternate(iface *device.Interface, alt uint8) error {
	return d.core.setAlternate(iface, alt)
}

func (d *UFIDriver) Close() error {
	return d.core.close()
}

// ConfigureDevice adds the MSC/UFI interface to a device builder.
func (d *UFIDriver) ConfigureDevice(builder *device.DeviceBuilder, bulkInEPAddr, bulkOutEPAddr uint8) *device.DeviceBuilder {
	return configureDevice(builder, SubclassUFI, bulkInEPAddr, bulkOutEPAddr)
}

// AttachToInterface attaches this driver to the MSC interface.
func (d *UFIDriver) AttachToInterface(dev *device.Device, configValue, ifaceNum uint8) error {
	return attachToInterface(dev, d, configValue, ifaceNum)
}

// Poll drives the transport by one non-blocking step and dispatches any
// open UFI command to its handler.
func (d *UFIDriver) Poll() error {
	d.mutex.RLock()
	configured := d.configured
	d.mutex.RUnlock()
	if !configured {
		return pkg.ErrNotConfigured
	}
	return d.ufi.Poll(d.dispatchUFI)
}

var _ device.ClassDriver = (*UFIDriver)(nil)
