package config

import (
	"fmt"
	"strings"

	"github.com/tturner/cipstack/internal/logging"
	"github.com/tturner/cipstack/internal/modbus"
	"github.com/tturner/cipstack/internal/pccc"
	"github.com/tturner/cipstack/internal/target"
)

// IdentityConfig overrides the Identity object of the simulated target.
type IdentityConfig struct {
	VendorID    uint16 `yaml:"vendor_id"`
	DeviceType  uint16 `yaml:"device_type"`
	ProductCode uint16 `yaml:"product_code"`
	RevMajor    uint8  `yaml:"rev_major"`
	RevMinor    uint8  `yaml:"rev_minor"`
	Serial      uint32 `yaml:"serial"`
	ProductName string `yaml:"product_name"`
}

// PCCCFileConfig declares one data table file, e.g. {file: N7, elements: 100}.
type PCCCFileConfig struct {
	File     string `yaml:"file"`
	Elements int    `yaml:"elements"`
}

// TargetConfig describes the simulated device used by selftest.
type TargetConfig struct {
	Identity        IdentityConfig   `yaml:"identity"`
	ModbusRegisters int              `yaml:"modbus_registers"` // 0 disables the Modbus object
	PCCCFiles       []PCCCFileConfig `yaml:"pccc_files,omitempty"`
}

// CreateDefaultTargetConfig returns the default target section.
func CreateDefaultTargetConfig() TargetConfig {
	id := target.DefaultIdentity()
	return TargetConfig{
		Identity: IdentityConfig{
			VendorID:    id.VendorID,
			DeviceType:  id.DeviceType,
			ProductCode: id.ProductCode,
			RevMajor:    id.RevMajor,
			RevMinor:    id.RevMinor,
			Serial:      id.Serial,
			ProductName: id.ProductName,
		},
		ModbusRegisters: 100,
		PCCCFiles: []PCCCFileConfig{
			{File: "N7", Elements: 100},
			{File: "F8", Elements: 20},
			{File: "T4", Elements: 10},
			{File: "B3", Elements: 16},
		},
	}
}

func validateTarget(cfg TargetConfig) error {
	if len(cfg.Identity.ProductName) > 32 {
		return fmt.Errorf("identity.product_name longer than 32 characters")
	}
	if cfg.ModbusRegisters < 0 || cfg.ModbusRegisters > 0xFFFF {
		return fmt.Errorf("modbus_registers %d must be in [0, 65535]", cfg.ModbusRegisters)
	}
	seen := make(map[string]bool)
	for i, f := range cfg.PCCCFiles {
		if _, err := parseFile(f.File); err != nil {
			return fmt.Errorf("pccc_files[%d]: %w", i, err)
		}
		if f.Elements <= 0 {
			return fmt.Errorf("pccc_files[%d]: elements must be > 0", i)
		}
		key := strings.ToUpper(f.File)
		if seen[key] {
			return fmt.Errorf("pccc_files[%d]: file %s declared twice", i, f.File)
		}
		seen[key] = true
	}
	return nil
}

func parseFile(name string) (pccc.Address, error) {
	a, err := pccc.ParseAddress(name + ":0")
	if err != nil {
		return pccc.Address{}, fmt.Errorf("file %q: %w", name, err)
	}
	return a, nil
}

// Options builds the target options the section describes.
func (c TargetConfig) Options(log *logging.Logger) ([]target.Option, error) {
	if err := validateTarget(c); err != nil {
		return nil, err
	}
	opts := []target.Option{
		target.WithLogger(log),
		target.WithIdentity(target.Identity{
			VendorID:    c.Identity.VendorID,
			DeviceType:  c.Identity.DeviceType,
			ProductCode: c.Identity.ProductCode,
			RevMajor:    c.Identity.RevMajor,
			RevMinor:    c.Identity.RevMinor,
			Serial:      c.Identity.Serial,
			ProductName: c.Identity.ProductName,
		}),
	}
	if c.ModbusRegisters > 0 {
		opts = append(opts, target.WithModbus(modbus.NewStore(c.ModbusRegisters)))
	}
	if len(c.PCCCFiles) > 0 {
		table := pccc.NewDataTable()
		for _, f := range c.PCCCFiles {
			a, _ := parseFile(f.File)
			if err := table.AddFile(a.FileType, a.FileNumber, f.Elements); err != nil {
				return nil, fmt.Errorf("pccc file %s: %w", f.File, err)
			}
		}
		opts = append(opts, target.WithPCCC(table))
	}
	return opts, nil
}
