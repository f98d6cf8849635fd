package msc

import (
	"github.com/ardnew/softusb/device"
	"github.com/ardnew/softusb/pkg"
	"github.com/ardnew/softusb/scsi"
)

// SCSIDriver is a USB Mass Storage class driver speaking the SCSI
// Transparent Command Set (subclass 0x06) over Bulk-Only Transport.
type SCSIDriver struct {
	*core
	scsi *scsi.SCSI[*SCSIDriver]
}

// NewSCSI creates a SCSI-subclass MSC driver over storage. vendorID and
// productID are copied into the INQUIRY response (8 and 16 characters
// respectively, padded with spaces).
func NewSCSI(storage Storage, vendorID, productID string) *SCSIDriver {
	d := &SCSIDriver{core: newCore(storage, vendorID, productID, 0, false)}
	d.scsi = scsi.New[*SCSIDriver](d, nil)
	return d
}

// SCSI core.init builds the transport once endpoints and a stack are
// known; rebuild the scsi.SCSI wrapper around it here so callers don't
// need a separate wiring step.
func (d *SCSIDriver) Init(iface *device.Interface) error {
	if err := d.core.init(iface); err != nil {
		return err
	}
	d.scsi = scsi.New[*SCSIDriver](d, d.transport)
	return nil
}

func (d *SCSIDriver) HandleSetup(iface *device.Interface, setup *device.SetupPacket, data []byte) (bool, error) {
	return d.core.handleSetup(setup, data)
}

func (d *SCSIDriver) SetAlternate(iface *device.Interface, alt uint8) error {
	return d.core.setAlternate(iface, alt)
}

func (d *SCSIDriver) Close() error {
	return d.core.close()
}

// ConfigureDevice adds the MSC/SCSI interface to a device builder.
func (d *SCSIDriver) ConfigureDevice(builder *device.DeviceBuilder, bulkInEPAddr, bulkOutEPAddr uint8) *device.DeviceBuilder {
	return configureDevice(builder, SubclassSCSI, bulkInEPAddr, bulkOutEPAddr)
}

// AttachToInterface attaches this driver to the MSC interface.
func (d *SCSIDriver) AttachToInterface(dev *device.Device, configValue, ifaceNum uint8) error {
	return attachToInterface(dev, d, configValue, ifaceNum)
}

// Poll drives the transport by one non-blocking step and dispatches any
// open SCSI command to its handler. Call this repeatedly from the
// application's event loop once the device is configured.
func (d *SCSIDriver) Poll() error {
	d.mutex.RLock()
	configured := d.configured
	d.mutex.RUnlock()
	if !configured {
		return pkg.ErrNotConfigured
	}
	return d.scsi.Poll(d.dispatchSCSI)
}

var _ device.ClassDriver = (*SCSIDriver)(nil)
