package main

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// config is the on-disk/override surface for mscdisk. Field names are
// matched case-insensitively against YAML keys via the koanf struct tag.
type config struct {
	Subclass   string `koanf:"subclass"`
	VendorID   uint16 `koanf:"vendorid"`
	ProductID  uint16 `koanf:"productid"`
	Vendor     string `koanf:"vendor"`
	Product    string `koanf:"product"`
	Serial     string `koanf:"serial"`
	SizeBytes  uint64 `koanf:"sizebytes"`
	BlockSize  uint32 `koanf:"blocksize"`
	ReadOnly   bool   `koanf:"readonly"`
	ImagePath  string `koanf:"imagepath"`
	BusDir     string `koanf:"busdir"`
	BulkInEP   uint8  `koanf:"bulkinep"`
	BulkOutEP  uint8  `koanf:"bulkoutep"`
}

func defaultConfig() config {
	return config{
		Subclass:  "scsi",
		VendorID:  0x1234,
		ProductID: 0x5680,
		Vendor:    "softusb",
		Product:   "Virtual Disk",
		Serial:    "12345678",
		SizeBytes: 1024 * 1024,
		BlockSize: 512,
		BulkInEP:  0x81,
		BulkOutEP: 0x01,
	}
}

// loadConfig starts from defaultConfig, overlays path (if it exists), and
// returns the result. A missing config file is not an error.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return cfg, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !strings.Contains(err.Error(), "no such file") {
				return cfg, err
			}
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
