// Command hostprobe is a host-side smoke test: it opens a real USB Mass
// Storage device by vendor/product ID via libusb and issues the
// Bulk-Only Transport's GET_MAX_LUN class control request, printing the
// reported maximum LUN. It is a connectivity check, not a SCSI
// initiator — it never issues a CBW.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/gousb"
)

// Class control request recipient/direction/type bits and the request
// code itself, mirroring bbb.ControlIn's GET_MAX_LUN handling on the
// device side.
const (
	requestTypeInterfaceClassIn = 0xA1 // IN | Class | Interface
	requestGetMaxLUN            = 0xFE
)

func main() {
	vid := flag.Uint("vid", 0x1234, "vendor ID (hex accepted via 0x prefix)")
	pid := flag.Uint("pid", 0x5680, "product ID (hex accepted via 0x prefix)")
	iface := flag.Uint("iface", 0, "MSC interface number")
	flag.Parse()

	ctx := gousb.NewContext()
	defer ctx.Close()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(*vid), gousb.ID(*pid))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostprobe: open device: %v\n", err)
		os.Exit(1)
	}
	if dev == nil {
		fmt.Fprintf(os.Stderr, "hostprobe: no device matching %#04x:%#04x\n", *vid, *pid)
		os.Exit(1)
	}
	defer dev.Close()

	if err := dev.SetAutoDetach(true); err != nil {
		fmt.Fprintf(os.Stderr, "hostprobe: set auto detach: %v\n", err)
		os.Exit(1)
	}

	var maxLUN [1]byte
	n, err := dev.Control(requestTypeInterfaceClassIn, requestGetMaxLUN, 0, uint16(*iface), maxLUN[:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostprobe: GET_MAX_LUN: %v\n", err)
		os.Exit(1)
	}
	if n < 1 {
		fmt.Fprintln(os.Stderr, "hostprobe: short GET_MAX_LUN response")
		os.Exit(1)
	}

	fmt.Printf("device %#04x:%#04x reports max LUN %d\n", *vid, *pid, maxLUN[0])
}
