// Package instrument discovers bench instruments that can force supply
// voltages: USBTMC-class power supplies and source-measure units, plus the
// built-in simulator.
package instrument

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// Kind categorizes instrument transports.
type Kind string

const (
	KindUSBTMC  Kind = "usbtmc"
	KindKnown   Kind = "supply"
	KindSim     Kind = "simulator"
	KindUnknown Kind = "unknown"
)

// USBTMC interface class triple (application specific, test and
// measurement, USB488 or plain).
const (
	usbtmcSubClass   = 0x03
	usbtmcProtocol   = 0x00
	usb488Protocol   = 0x01
	simulatorAddress = "sim"
)

// Info describes one detected instrument.
type Info struct {
	Kind        Kind
	Description string
	VendorID    uint16
	ProductID   uint16
	Path        string // bus:address, or "sim"
	USB488      bool
}

// Label returns a user-friendly description.
func (i Info) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return fmt.Sprintf("Instrument %04X:%04X", i.VendorID, i.ProductID)
}

// Simulated reports whether i is the simulator entry.
func (i Info) Simulated() bool {
	return i.Kind == KindSim
}

// Simulator is the always-present simulated supply.
var Simulator = Info{
	Kind:        KindSim,
	Description: "Simulated supply (no hardware)",
	Path:        simulatorAddress,
}

// Discover enumerates connected USB instruments that expose a USBTMC
// interface or match a known supply VID/PID. The simulator entry is always
// appended so searches can run without hardware.
func Discover(ctx context.Context) ([]Info, error) {
	var results []Info
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if info, ok := Classify(desc); ok {
			results = append(results, info)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, fmt.Errorf("instrument: usb enumeration: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	return append(results, Simulator), nil
}

// Classify decides whether a USB device is a voltage-forcing instrument.
func Classify(desc *gousb.DeviceDesc) (Info, bool) {
	info := Info{
		VendorID:  uint16(desc.Vendor),
		ProductID: uint16(desc.Product),
		Path:      fmt.Sprintf("%d:%d", desc.Bus, desc.Address),
	}

	for _, known := range knownSupplies {
		if info.VendorID == known.VendorID && info.ProductID == known.ProductID {
			info.Kind = KindKnown
			info.Description = known.Description
			info.USB488 = hasUSBTMC(desc, true)
			return info, true
		}
	}

	if hasUSBTMC(desc, false) {
		info.Kind = KindUSBTMC
		info.USB488 = hasUSBTMC(desc, true)
		if vendor, ok := knownVendors[info.VendorID]; ok {
			info.Description = fmt.Sprintf("%s USBTMC instrument (%04X:%04X)", vendor, info.VendorID, info.ProductID)
		}
		return info, true
	}
	return Info{}, false
}

// hasUSBTMC reports whether any alternate setting carries the USBTMC class,
// optionally requiring the USB488 sub-protocol.
func hasUSBTMC(desc *gousb.DeviceDesc, usb488 bool) bool {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class != gousb.ClassApplication || alt.SubClass != usbtmcSubClass {
					continue
				}
				switch alt.Protocol {
				case usb488Protocol:
					return true
				case usbtmcProtocol:
					if !usb488 {
						return true
					}
				}
			}
		}
	}
	return false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownSupplies = []knownUSBDevice{
	{VendorID: 0x2a8d, ProductID: 0x0f02, Description: "Keysight E36300 Power Supply"},
	{VendorID: 0x0957, ProductID: 0x8c07, Description: "Keysight B2900 SMU"},
	{VendorID: 0x05e6, ProductID: 0x2450, Description: "Keithley 2450 SMU"},
	{VendorID: 0x1ab1, ProductID: 0x0e11, Description: "Rigol DP800 Power Supply"},
	{VendorID: 0xf4ec, ProductID: 0x1430, Description: "Siglent SPD3303X Power Supply"},
}

var knownVendors = map[uint16]string{
	0x0957: "Agilent",
	0x2a8d: "Keysight",
	0x05e6: "Keithley",
	0x0699: "Tektronix",
	0x1ab1: "Rigol",
	0x0aad: "Rohde & Schwarz",
	0xf4ec: "Siglent",
}
