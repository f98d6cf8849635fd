// Command mscdisk serves a block-storage backend as a USB Mass Storage
// device over the FIFO loopback HAL, selecting between the SCSI and UFI
// command sets at startup.
//
// Usage:
//
//	mscdisk [-config mscdisk.yml] [-v] [-json] <bus-dir>
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardnew/softusb/device"
	"github.com/ardnew/softusb/device/class/msc"
	"github.com/ardnew/softusb/device/hal/fifo"
	"github.com/ardnew/softusb/pkg"
)

const component = pkg.ComponentDevice

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	verbose := flag.Bool("v", false, "enable verbose (debug) logging")
	jsonLog := flag.Bool("json", false, "use JSON log format")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: mscdisk [-config path] [-v] [-json] <bus-dir>")
		os.Exit(1)
	}
	busDir := flag.Arg(0)

	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if *jsonLog {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		pkg.LogError(component, "failed to load config", "error", err)
		os.Exit(1)
	}

	storage, err := newStorage(cfg)
	if err != nil {
		pkg.LogError(component, "failed to open storage backend", "error", err)
		os.Exit(1)
	}

	driver, err := newDriver(cfg, storage)
	if err != nil {
		pkg.LogError(component, "failed to build driver", "error", err)
		os.Exit(1)
	}

	builder := device.NewDeviceBuilder().
		WithVendorProduct(cfg.VendorID, cfg.ProductID).
		WithStrings(cfg.Vendor, cfg.Product, cfg.Serial).
		AddConfiguration(1)

	driver.ConfigureDevice(builder, cfg.BulkInEP, cfg.BulkOutEP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		pkg.LogInfo(component, "shutting down...")
		cancel()
	}()

	dev, err := builder.Build(ctx)
	if err != nil {
		pkg.LogError(component, "failed to build device", "error", err)
		os.Exit(1)
	}

	hal := fifo.New(busDir)
	stack := device.NewStack(dev, hal)
	driver.SetStack(stack)

	if err := driver.AttachToInterface(dev, 1, 0); err != nil {
		pkg.LogError(component, "failed to attach driver", "error", err)
		os.Exit(1)
	}

	if err := stack.Start(ctx); err != nil {
		pkg.LogError(component, "failed to start stack", "error", err)
		os.Exit(1)
	}
	defer stack.Stop()

	pkg.LogInfo(component, "waiting for host connection...")
	if err := stack.WaitConnect(ctx); err != nil {
		pkg.LogError(component, "connection wait failed", "error", err)
		os.Exit(1)
	}

	pkg.LogInfo(component, "host connected, running MSC protocol", "subclass", cfg.Subclass)

	for ctx.Err() == nil && stack.IsConnected() {
		if err := driver.Poll(); err != nil {
			pkg.LogError(component, "MSC processing error", "error", err)
			os.Exit(1)
		}
	}

	pkg.LogInfo(component, "device stopped")
}

func newStorage(cfg config) (msc.Storage, error) {
	if cfg.ImagePath != "" {
		return msc.NewFileStorage(cfg.ImagePath, cfg.BlockSize, cfg.ReadOnly)
	}
	return msc.NewMemoryStorage(cfg.SizeBytes, cfg.BlockSize), nil
}

// driver is the common surface mscdisk needs from either command set.
type driver interface {
	ConfigureDevice(builder *device.DeviceBuilder, bulkInEPAddr, bulkOutEPAddr uint8) *device.DeviceBuilder
	AttachToInterface(dev *device.Device, configValue, ifaceNum uint8) error
	SetStack(stack *device.Stack)
	Poll() error
}

func newDriver(cfg config, storage msc.Storage) (driver, error) {
	switch cfg.Subclass {
	case "", "scsi":
		return msc.NewSCSI(storage, cfg.Vendor, cfg.Product), nil
	case "ufi":
		return msc.NewUFI(storage, cfg.Vendor, cfg.Product), nil
	default:
		return nil, fmt.Errorf("mscdisk: unknown subclass %q (want scsi or ufi)", cfg.Subclass)
	}
}
