package deviceinfo

import "github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"

// DeviceInfo describes a part identified by its designer and part number, as
// read from a DPv2 TARGETID or from the PIDR of an AP's top level ROM table.
type DeviceInfo struct {
	Manufacturer idcode.Manufacturer
	PartNumber   uint16

	// Human-friendly
	Name        string // "STM32F40x/41x"
	Family      string // "STM32F4"
	Description string // "ARM Cortex-M4 MCU with FPU"

	ARMCore string // "Cortex-M4", "Cortex-M33", etc.
	Cores   int    // number of application cores, 0 if unknown
}
